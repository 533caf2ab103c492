package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"order_payment_service/internal/pkg/config"

	"github.com/aliyun/alibaba-cloud-sdk-go/sdk/requests"
	"github.com/aliyun/alibaba-cloud-sdk-go/services/push"
)

// Notifier 给用户发送通知
type Notifier interface {
	NotifyUser(ctx context.Context, userID, title, body string, ext map[string]string) error
}

type AliyunPushNotifier struct {
	client *push.Client
	appKey int64
}

func NewAliyunPushNotifier(cfg config.PushConfig) (*AliyunPushNotifier, error) {
	if cfg.AccessKeyID == "" || cfg.AppKey == 0 {
		return nil, fmt.Errorf("push config is missing")
	}

	client, err := push.NewClientWithAccessKey(cfg.RegionID, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, err
	}
	return &AliyunPushNotifier{client: client, appKey: cfg.AppKey}, nil
}

// NotifyUser 按账号推送，账号即用户 ID
func (n *AliyunPushNotifier) NotifyUser(ctx context.Context, userID, title, body string, ext map[string]string) error {
	request := push.CreatePushRequest()
	request.AppKey = requests.NewInteger(int(n.appKey))
	request.Target = "ACCOUNT"
	request.TargetValue = userID
	request.Title = title
	request.Body = body
	request.DeviceType = "ALL"
	request.PushType = "NOTICE"

	if len(ext) > 0 {
		extJSON, err := json.Marshal(ext)
		if err != nil {
			return err
		}
		request.AndroidExtParameters = string(extJSON)
		request.IOSExtParameters = string(extJSON)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := n.client.Push(request)
	return err
}

// NopNotifier 推送未配置时使用
type NopNotifier struct{}

func (NopNotifier) NotifyUser(context.Context, string, string, string, map[string]string) error {
	return nil
}
