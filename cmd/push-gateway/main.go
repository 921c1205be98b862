// cmd/push-gateway/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Noman836/flesh-deal-api/internal/pkg/bootstrap"
	"github.com/Noman836/flesh-deal-api/internal/pkg/mq"
)

var (
	nodeID   = "push-gateway-" + uuid.New().String()[:8]
	upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool { // 简化处理，允许所有跨域
			return true
		},
	}
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Hub 维护所有活跃的连接，按商品 ID 分组广播库存变更
type Hub struct {
	clients    map[string]map[*Client]struct{} // productID -> 订阅该商品的连接
	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcastMsg
	lock       sync.RWMutex
}

type broadcastMsg struct {
	productID string
	payload   []byte
}

func newHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcastMsg, 256),
	}
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.lock.Lock()
			if h.clients[client.productID] == nil {
				h.clients[client.productID] = make(map[*Client]struct{})
			}
			h.clients[client.productID][client] = struct{}{}
			h.lock.Unlock()
			log.Printf("Client subscribed to %s on node %s", client.productID, nodeID)
		case client := <-h.unregister:
			h.lock.Lock()
			if subs, ok := h.clients[client.productID]; ok {
				if _, ok := subs[client]; ok {
					delete(subs, client)
					close(client.send)
					if len(subs) == 0 {
						delete(h.clients, client.productID)
					}
				}
			}
			h.lock.Unlock()
		case msg := <-h.broadcast:
			h.lock.RLock()
			for client := range h.clients[msg.productID] {
				select {
				case client.send <- msg.payload:
				default:
					// 发送缓冲满的连接视为死连接
					go func(c *Client) { h.unregister <- c }(client)
				}
			}
			h.lock.RUnlock()
		}
	}
}

// Client 是一个WebSocket连接的代表
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	productID string
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func serveWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	// 1. 从URL参数获取要订阅的商品
	productID := r.URL.Query().Get("productId")
	if productID == "" {
		http.Error(w, "productId is required", http.StatusBadRequest)
		return
	}

	// 2. HTTP升级为WebSocket
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	// 3. 创建客户端实例并注册到Hub
	client := &Client{hub: hub, conn: conn, send: make(chan []byte, 256), productID: productID}
	client.hub.register <- client

	// 4. 启动读写goroutine
	go client.writePump()
	go client.readPump()
}

// consumeStockEvents 消费库存变更事件并按商品广播。
// 消息 Key 就是 productID，事件体原样透传给页面。
func consumeStockEvents(ctx context.Context, hub *Hub) {
	cfg := bootstrap.GetCurrentConfig()
	reader := mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.StockEventsTopic, nodeID)
	defer reader.Close()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Failed to read stock event: %v", err)
			continue
		}
		hub.broadcast <- broadcastMsg{productID: string(msg.Key), payload: msg.Value}
	}
}

func main() {
	bootstrap.Init()

	hub := newHub()
	go hub.run()

	ctx, cancel := context.WithCancel(context.Background())
	go consumeStockEvents(ctx, hub)

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(hub, w, r)
	})
	http.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	server := &http.Server{Addr: ":8088"}
	go func() {
		log.Printf("Push Gateway (%s) started on :8088", nodeID)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("ListenAndServe: ", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down http server: %v", err)
	}
	log.Printf("Push Gateway (%s) gracefully shut down.", nodeID)
}
