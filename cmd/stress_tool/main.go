package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"order_payment_service/internal/pkg/auth"
	"order_payment_service/internal/pkg/config"
	"order_payment_service/pkg/utils"

	"github.com/spf13/cobra"
	"github.com/stripe/stripe-go/v76/webhook"
)

// 重复投递压测：同一个 payment_intent.succeeded 事件并发投递多次，
// 校验订单只被确认一次、只有一笔 SUCCEEDED 支付
var (
	baseURL     string
	secret      string
	intentID    string
	orderID     string
	token       string
	deliveries  int
	concurrency int
	httpClient  *http.Client
)

func init() {
	// 优化 HTTP Client 配置
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 2000
	t.MaxIdleConnsPerHost = 2000
	t.MaxConnsPerHost = 2000
	httpClient = &http.Client{
		Transport: t,
		Timeout:   10 * time.Second,
	}
}

func main() {
	cmd := &cobra.Command{
		Use:           "stress_tool",
		Short:         "Replay one signed webhook event concurrently and check it settles once",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
	f := cmd.Flags()
	f.StringVar(&baseURL, "url", "http://localhost:8080", "server base url")
	f.StringVar(&secret, "secret", os.Getenv("STRIPE_WEBHOOK_SECRET"), "webhook signing secret")
	f.StringVar(&intentID, "intent", "", "payment intent id to settle")
	f.StringVar(&orderID, "order", "", "order id to verify afterwards")
	f.StringVar(&token, "token", "", "bearer token of the order owner or an admin (default: admin token signed with the server's jwt.secret)")
	f.IntVar(&deliveries, "deliveries", 1000, "total deliveries")
	f.IntVar(&concurrency, "concurrency", 100, "parallel senders")
	_ = cmd.MarkFlagRequired("intent")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run() error {
	if secret == "" {
		return fmt.Errorf("webhook secret is required (--secret or STRIPE_WEBHOOK_SECRET)")
	}
	payload, err := eventPayload()
	if err != nil {
		return err
	}

	fmt.Printf("开始压测：%d 次投递，%d 并发，intent %s\n", deliveries, concurrency, intentID)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		status = map[int]int{}
		failed int
	)
	sem := make(chan struct{}, concurrency)
	start := time.Now()

	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			code, err := deliver(payload)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				return
			}
			status[code]++
		}()
	}
	wg.Wait()
	duration := time.Since(start)

	fmt.Println("--------------------------------------------------")
	fmt.Printf("压测结束，耗时: %v\n", duration)
	fmt.Printf("QPS: %.2f\n", float64(deliveries)/duration.Seconds())
	for code, n := range status {
		fmt.Printf("HTTP %d: %d\n", code, n)
	}
	fmt.Printf("请求失败: %d\n", failed)

	if orderID != "" {
		if token == "" {
			if token, err = adminToken(); err != nil {
				return err
			}
		}
		succeeded, err := countSucceeded()
		if err != nil {
			return err
		}
		fmt.Printf("SUCCEEDED 支付: %d (预期: 1)\n", succeeded)
		if succeeded != 1 {
			return fmt.Errorf("expected exactly one succeeded payment, got %d", succeeded)
		}
	}
	fmt.Println("--------------------------------------------------")
	return nil
}

func eventPayload() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"id":     "evt_stress_" + intentID,
		"object": "event",
		"type":   "payment_intent.succeeded",
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":     intentID,
				"object": "payment_intent",
				"status": "succeeded",
			},
		},
	})
}

func deliver(payload []byte) (int, error) {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})

	req, err := http.NewRequest(http.MethodPost, baseURL+"/v1/webhooks/stripe", bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)

	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// adminToken 用服务端配置里的 jwt.secret 签一个管理员 token
func adminToken() (string, error) {
	if _, err := config.LoadConfig(); err != nil {
		return "", fmt.Errorf("load config for admin token: %w", err)
	}
	t, _, err := utils.GenerateToken("stress-tool", string(auth.RoleAdmin))
	return t, err
}

func countSucceeded() (int, error) {
	req, err := http.NewRequest(http.MethodGet, baseURL+"/v1/payments/order/"+orderID, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("list payments: HTTP %d", resp.StatusCode)
	}

	var result struct {
		Data []struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, err
	}
	n := 0
	for _, p := range result.Data {
		if p.Status == "SUCCEEDED" {
			n++
		}
	}
	return n, nil
}
