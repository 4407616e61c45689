package services

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"guestnet-http-service/internal/domain/models"
	"guestnet-http-service/internal/infrastructure/config"
	"guestnet-http-service/pkg/logger"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// GatewayCommand 表示下发给网络网关的放行/断网指令
type GatewayCommand struct {
	Command    string `json:"command"` // grant / revoke
	SessionID  uint   `json:"session_id"`
	ClientIP   string `json:"client_ip,omitempty"`
	DeviceInfo string `json:"device_info,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

// AlertNotification 表示阈值告警通知
type AlertNotification struct {
	SessionID    uint   `json:"session_id"`
	Dimension    string `json:"dimension"` // data / time
	Threshold    int    `json:"threshold"` // 80 / 95
	Level        string `json:"level"`     // warning / critical
	UsagePercent int    `json:"usage_percent"`
	Timestamp    int64  `json:"timestamp"`
}

// InterfaceNetworkService 定义网关联动服务接口。
// 所有发布都是尽力而为：发布失败只记录日志，绝不影响会话状态变更
type InterfaceNetworkService interface {
	Connect() error
	Disconnect()
	PublishGrant(session *models.GuestSession)
	PublishRevoke(session *models.GuestSession, reason string)
	PublishAlert(session *models.GuestSession, alert ThresholdAlert)
	IsConnected() bool
}

// NetworkService 通过MQTT与网络控制网关和通知端交互
type NetworkService struct {
	Config *config.Config
	Client mqtt.Client

	connected      bool
	connectedMutex sync.RWMutex
	publishMutex   sync.Mutex
}

// NewNetworkService 创建一个新的网关联动服务
func NewNetworkService(cfg *config.Config) InterfaceNetworkService {
	s := &NetworkService{
		Config: cfg,
	}
	if cfg.MQTTEnabled {
		s.setupMQTTClient()
	}
	return s
}

// setupMQTTClient 初始化MQTT客户端
func (s *NetworkService) setupMQTTClient() {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.Config.MQTTBrokerURL)
	// 客户端ID加随机后缀，避免多实例互踢
	opts.SetClientID(fmt.Sprintf("%s-%s", s.Config.MQTTClientID, uuid.New().String()[:8]))
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(time.Second * 30)
	opts.SetKeepAlive(time.Second * 60)
	opts.SetPingTimeout(time.Second * 10)
	opts.SetCleanSession(true)

	if s.Config.MQTTUsername != "" {
		opts.SetUsername(s.Config.MQTTUsername)
		opts.SetPassword(s.Config.MQTTPassword)
	}

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		s.connectedMutex.Lock()
		s.connected = false
		s.connectedMutex.Unlock()
		logger.Warning("[MQTT] 连接断开: %v", err)
	})
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		s.connectedMutex.Lock()
		s.connected = true
		s.connectedMutex.Unlock()
		logger.Info("[MQTT] 已连接到 %s", s.Config.MQTTBrokerURL)
	})

	s.Client = mqtt.NewClient(opts)
}

// Connect 连接MQTT服务器，带指数退避重试
func (s *NetworkService) Connect() error {
	if !s.Config.MQTTEnabled {
		logger.Info("[MQTT] 网关联动已禁用，指令仅记录日志")
		return nil
	}

	s.publishMutex.Lock()
	defer s.publishMutex.Unlock()

	if s.IsConnected() {
		return nil
	}

	maxRetries := 5
	var err error
	for i := 0; i < maxRetries; i++ {
		token := s.Client.Connect()
		if token.WaitTimeout(5*time.Second) && token.Error() == nil {
			s.connectedMutex.Lock()
			s.connected = true
			s.connectedMutex.Unlock()
			return nil
		}

		err = token.Error()
		backoffTime := time.Duration(1<<uint(i)) * time.Second // 指数退避: 1s, 2s, 4s, 8s, 16s
		logger.Warning("[MQTT] 连接尝试 %d/%d 失败: %v, 将在 %v 后重试", i+1, maxRetries, err, backoffTime)
		time.Sleep(backoffTime)
	}

	return fmt.Errorf("[MQTT] 连接失败，已尝试 %d 次: %v", maxRetries, err)
}

// Disconnect 断开MQTT连接
func (s *NetworkService) Disconnect() {
	if s.Client != nil && s.Client.IsConnected() {
		s.Client.Disconnect(250)
	}
	s.connectedMutex.Lock()
	s.connected = false
	s.connectedMutex.Unlock()
}

// IsConnected 返回当前连接状态
func (s *NetworkService) IsConnected() bool {
	s.connectedMutex.RLock()
	defer s.connectedMutex.RUnlock()
	return s.connected && s.Client != nil && s.Client.IsConnected()
}

// PublishGrant 通知网关放行该会话的网络访问
func (s *NetworkService) PublishGrant(session *models.GuestSession) {
	cmd := GatewayCommand{
		Command:    "grant",
		SessionID:  session.ID,
		ClientIP:   session.ClientIP,
		DeviceInfo: session.DeviceInfo,
		Timestamp:  time.Now().Unix(),
	}
	s.publish(s.Config.MQTTTopicRoot+"/gateway/grant", cmd)
}

// PublishRevoke 通知网关断开该会话的网络访问
func (s *NetworkService) PublishRevoke(session *models.GuestSession, reason string) {
	cmd := GatewayCommand{
		Command:    "revoke",
		SessionID:  session.ID,
		ClientIP:   session.ClientIP,
		DeviceInfo: session.DeviceInfo,
		Reason:     reason,
		Timestamp:  time.Now().Unix(),
	}
	s.publish(s.Config.MQTTTopicRoot+"/gateway/revoke", cmd)
}

// PublishAlert 发布阈值告警通知
func (s *NetworkService) PublishAlert(session *models.GuestSession, alert ThresholdAlert) {
	notification := AlertNotification{
		SessionID:    session.ID,
		Dimension:    alert.Dimension,
		Threshold:    alert.Threshold,
		Level:        alert.Level,
		UsagePercent: alert.UsagePercent,
		Timestamp:    time.Now().Unix(),
	}
	s.publish(s.Config.MQTTTopicRoot+"/alerts", notification)
}

// publish 序列化并发布消息，失败只记录日志
func (s *NetworkService) publish(topic string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error("[MQTT] 消息序列化失败: topic=%s err=%v", topic, err)
		return
	}

	if !s.Config.MQTTEnabled || s.Client == nil {
		logger.Info("[MQTT] (禁用) %s: %s", topic, string(data))
		return
	}

	s.publishMutex.Lock()
	defer s.publishMutex.Unlock()

	token := s.Client.Publish(topic, byte(s.Config.MQTTQoS), s.Config.MQTTRetained, data)
	if !token.WaitTimeout(3*time.Second) || token.Error() != nil {
		logger.Error("[MQTT] 消息发布失败: topic=%s err=%v", topic, token.Error())
	}
}
