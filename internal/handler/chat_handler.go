package handler

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"multimodal-rag-go/internal/service"
	"multimodal-rag-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

// chatMessage 是客户端发送的一条消息：{"type":"stop"} 或携带问题与可选参数。
type chatMessage struct {
	Type string `json:"type"`
	queryRequest
}

// ChatHandler 负责处理 WebSocket 聊天连接。
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// Handle 处理一个传入的 WebSocket 连接。读循环与流式响应并行，
// 以便在生成过程中接收停止指令。
func (h *ChatHandler) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	ws := &lockedConn{conn: conn}

	log.Infof("WebSocket 连接已建立: %s", c.ClientIP())

	var stopFlag atomic.Bool
	// 生成中最多排队一个问题，读循环永不阻塞，停止指令始终可达
	questions := make(chan chatMessage, 1)

	go func() {
		defer close(questions)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
				return
			}
			msg, ok := parseChatMessage(message)
			if !ok {
				writeJSON(ws, gin.H{"error": "无效的消息格式"})
				continue
			}
			if msg.Type == "stop" {
				log.Info("收到停止指令，正在中断流式响应...")
				stopFlag.Store(true)
				writeJSON(ws, gin.H{
					"type":      "stop",
					"message":   "响应已停止",
					"timestamp": time.Now().UnixMilli(),
					"date":      time.Now().Format("2006-01-02T15:04:05"),
				})
				continue
			}
			if !enqueueQuestion(questions, msg) {
				log.Warnf("已有问题在排队，拒绝新问题: %s", msg.Query)
				writeJSON(ws, gin.H{
					"type":    "busy",
					"message": "上一个问题仍在处理中，请稍后或先发送停止指令",
					"query":   msg.Query,
				})
			}
		}
	}()

	for msg := range questions {
		stopFlag.Store(false)
		req := msg.toService(service.NewRequestID())
		_, err := h.chatService.StreamResponse(c.Request.Context(), req, ws, stopFlag.Load)
		if err != nil {
			log.Errorf("处理流式响应失败: %v", err)
			writeJSON(ws, gin.H{"error": errorMessage(err)})
			_ = ws.WriteMessage(websocket.TextMessage, service.CompletionNotice())
		}
	}
}

// enqueueQuestion 非阻塞地投递问题，队列已满时返回 false。
func enqueueQuestion(questions chan<- chatMessage, msg chatMessage) bool {
	select {
	case questions <- msg:
		return true
	default:
		return false
	}
}

// parseChatMessage 支持 JSON 消息与纯文本问题两种形式。
func parseChatMessage(message []byte) (chatMessage, bool) {
	var msg chatMessage
	if len(message) > 0 && message[0] == '{' {
		if err := json.Unmarshal(message, &msg); err != nil {
			return msg, false
		}
		return msg, msg.Type == "stop" || msg.Query != ""
	}
	msg.Query = string(message)
	return msg, msg.Query != ""
}

func errorMessage(err error) string {
	if statusFor(err) == http.StatusBadRequest {
		return err.Error()
	}
	return "AI服务暂时不可用，请稍后重试"
}

// lockedConn 串行化写操作，websocket.Conn 不支持并发写。
type lockedConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (l *lockedConn) WriteMessage(messageType int, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn.WriteMessage(messageType, data)
}

func writeJSON(ws *lockedConn, v interface{}) {
	b, _ := json.Marshal(v)
	_ = ws.WriteMessage(websocket.TextMessage, b)
}
