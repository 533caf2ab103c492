package worker

import (
	"context"
	"sync"
	"time"

	"order_payment_service/pkg/logger"

	"go.uber.org/zap"
)

// Task 后台任务，失败会按重试策略重新入队
type Task interface {
	Name() string
	Run(ctx context.Context) error
}

type funcTask struct {
	name string
	fn   func(ctx context.Context) error
}

func (t funcTask) Name() string                  { return t.name }
func (t funcTask) Run(ctx context.Context) error { return t.fn(ctx) }

// Func 把函数包装成 Task
func Func(name string, fn func(ctx context.Context) error) Task {
	return funcTask{name: name, fn: fn}
}

type queuedTask struct {
	task  Task
	retry int // 已重试次数
}

type WorkerPool struct {
	TaskQueue   chan queuedTask
	RetryQueue  chan queuedTask // 重试队列
	WorkerNum   int
	MaxRetry    int           // 最大重试次数
	RetryDelay  time.Duration // 第 n 次重试等待 n*RetryDelay
	TaskTimeout time.Duration

	mu       sync.RWMutex
	closed   bool
	stopCh   chan struct{}
	workers  sync.WaitGroup
	retrying sync.WaitGroup
}

func NewWorkerPool(workerNum, bufferSize, maxRetry int) *WorkerPool {
	if workerNum <= 0 {
		workerNum = 1
	}
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &WorkerPool{
		TaskQueue:   make(chan queuedTask, bufferSize),
		RetryQueue:  make(chan queuedTask, bufferSize/2+1),
		WorkerNum:   workerNum,
		MaxRetry:    maxRetry,
		RetryDelay:  time.Second,
		TaskTimeout: 30 * time.Second,
		stopCh:      make(chan struct{}),
	}
}

func (p *WorkerPool) Start() {
	for i := 0; i < p.WorkerNum; i++ {
		p.workers.Add(1)
		go p.worker(i)
	}
	// 启动重试处理协程
	p.retrying.Add(1)
	go p.retryWorker()
	logger.Log.Info("worker pool started", zap.Int("workers", p.WorkerNum))
}

// Stop 停止接收新任务，等待队列中的任务执行完
func (p *WorkerPool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.stopCh)
	close(p.TaskQueue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.workers.Wait()
		close(p.RetryQueue)
		p.retrying.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *WorkerPool) worker(id int) {
	defer p.workers.Done()
	for qt := range p.TaskQueue {
		if err := p.processTask(qt.task); err != nil {
			logger.Log.Warn("task failed",
				zap.Int("worker", id),
				zap.String("task", qt.task.Name()),
				zap.Int("retry", qt.retry),
				zap.Error(err),
			)

			// 如果未达到最大重试次数，加入重试队列
			if qt.retry < p.MaxRetry {
				qt.retry++
				select {
				case p.RetryQueue <- qt:
				default:
					p.logFailedTask(qt, err)
				}
			} else {
				p.logFailedTask(qt, err)
			}
		}
	}
}

func (p *WorkerPool) retryWorker() {
	defer p.retrying.Done()
	for qt := range p.RetryQueue {
		// 延迟重试，避免立即重试；停止时不再等待
		select {
		case <-time.After(time.Duration(qt.retry) * p.RetryDelay):
		case <-p.stopCh:
			p.logFailedTask(qt, nil)
			continue
		}

		if !p.enqueue(qt) {
			p.logFailedTask(qt, nil)
		}
	}
}

func (p *WorkerPool) processTask(task Task) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.TaskTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("task panicked", zap.String("task", task.Name()), zap.Any("panic", r))
			err = nil
		}
	}()
	return task.Run(ctx)
}

func (p *WorkerPool) logFailedTask(qt queuedTask, err error) {
	logger.Log.Error("task dropped (dead letter)",
		zap.String("task", qt.task.Name()),
		zap.Int("retry", qt.retry),
		zap.Error(err),
	)
}

func (p *WorkerPool) enqueue(qt queuedTask) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.TaskQueue <- qt:
		return true
	default:
		return false
	}
}

// AddTask 非阻塞入队，队列满或已停止时丢弃并返回 false
func (p *WorkerPool) AddTask(task Task) bool {
	if !p.enqueue(queuedTask{task: task}) {
		logger.Log.Error("worker pool queue full or stopped, dropping task", zap.String("task", task.Name()))
		return false
	}
	return true
}
