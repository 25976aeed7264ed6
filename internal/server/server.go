package server

import (
	"context"
	"errors"
	"net"
	"net/http"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

type HttpServerParams struct {
	fx.In

	Config HttpConfig

	Handlers []*HttpHandler `group:"handlers"`
	Logger   *zap.Logger
}

type HttpServer struct {
	server *http.Server
	addr   net.Addr
	log    *zap.Logger
}

func NewHttpServer(params HttpServerParams) *HttpServer {
	mux := http.NewServeMux()

	for _, handler := range params.Handlers {
		mux.Handle(handler.Name, handler.Handler)
	}

	var handler http.Handler = mux
	if params.Config.H2c {
		handler = h2c.NewHandler(mux, &http2.Server{})
	}

	return &HttpServer{
		server: &http.Server{
			Addr:    params.Config.Addr(),
			Handler: handler,
		},
		log: params.Logger,
	}
}

// NewLifecycleServer binds the listener on start, so that a port in use
// fails the start of the app, and serves until stop. A serve error
// after start shuts the app down.
func NewLifecycleServer(params HttpServerParams, lc fx.Lifecycle, shutdowner fx.Shutdowner) *HttpServer {
	server := NewHttpServer(params)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			listener, err := server.Listen(ctx)
			if err != nil {
				return err
			}

			go func() {
				if err := server.Serve(listener); err != nil {
					shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})

	return server
}

func (s *HttpServer) Listen(ctx context.Context) (net.Listener, error) {
	var cfg net.ListenConfig

	listener, err := cfg.Listen(ctx, "tcp", s.server.Addr)
	if err != nil {
		s.log.Error("failed to listen", zap.String("address", s.server.Addr), zap.Error(err))
		return nil, err
	}

	s.addr = listener.Addr()
	s.log.Info("listening", zap.String("address", s.addr.String()))

	return listener, nil
}

// Address returns the bound address once Listen succeeded.
func (s *HttpServer) Address() string {
	if s.addr == nil {
		return ""
	}
	return s.addr.String()
}

func (s *HttpServer) Serve(listener net.Listener) error {
	if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Error("failed to serve", zap.Error(err))
		return err
	}

	return nil
}

func (s *HttpServer) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		s.log.Error("failed to shutdown", zap.Error(err))
		return err
	}

	return nil
}
