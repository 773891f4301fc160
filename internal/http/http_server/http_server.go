package http_server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/abrar71/swaggerfilesv2" // swagger embed files

	"cricketauction/internal/config"
	"cricketauction/internal/http/auctionhandler"
	"cricketauction/internal/registry"
	"cricketauction/internal/ws"
)

type httpServer struct {
	cfg   *config.Config
	srv   http.Server
	ln    net.Listener
	store auctionhandler.AuctionStore
	reg   *registry.Registry
	wsSrv *ws.WsServer
	ctx   context.Context
}

func NewHttpServer(ctx context.Context, cfg *config.Config, wsSrv *ws.WsServer, st auctionhandler.AuctionStore, reg *registry.Registry) *httpServer {
	return &httpServer{
		cfg:   cfg,
		wsSrv: wsSrv,
		store: st,
		reg:   reg,
		ctx:   ctx,
	}
}

func (h *httpServer) Start() error {
	var err error
	listenAddr := fmt.Sprintf(":%d", h.cfg.HttpServerPort)
	h.ln, err = net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}

	routerEngine := gin.New()

	// Swagger UI and API specs
	routerEngine.StaticFS("/swagger-apis", http.FS(swaggerfilesv2.FS))
	routerEngine.Static("/api-specs", "api_specs")

	routerEngine.Use(ginzap.RecoveryWithZap(zap.L(), true))

	routerEngine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// websocket endpoint
	routerEngine.GET("/ws", h.wsSrv.Handle)

	// REST API
	ah := auctionhandler.New(h.store, h.reg, h.cfg.BidTimer, h.cfg.WarnTimer)
	ah.Register(routerEngine)

	h.srv = http.Server{
		Handler: routerEngine,
	}

	return h.srv.Serve(h.ln)
}

// Dispose gracefully shuts the HTTP server down.
// It waits up to 10 s for in-flight requests to finish.
func (h *httpServer) Dispose() error {
	ctx, cancel := context.WithTimeout(h.ctx, 10*time.Second)
	defer cancel()

	if err := h.srv.Shutdown(ctx); err != nil {
		zap.L().Error("http_dispose", zap.Error(err))
		return err // e.g. active conns didn't finish in time
	}

	if ctx.Err() == context.DeadlineExceeded {
		zap.L().Error("http_dispose", zap.Error(errors.New("shutdown timed out")))
		log.Println("shutdown timeout (10 s)")
	}

	return nil
}
