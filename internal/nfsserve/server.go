// Package nfsserve exports a FAT32 volume read-only over NFSv3.
package nfsserve

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"
	nfs "github.com/willscott/go-nfs"
	nfshelper "github.com/willscott/go-nfs/helpers"

	"github.com/aligator/rofat"
)

// DefaultHandleCacheSize is the number of file handles the server remembers.
const DefaultHandleCacheSize = 1024

type Options struct {
	HandleCacheSize int
	Logger          logrus.FieldLogger
}

// Server wraps the go-nfs server.
type Server struct {
	server  *nfs.Server
	handler nfs.Handler
	log     logrus.FieldLogger
}

func NewServer(volume *rofat.Fs, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.HandleCacheSize <= 0 {
		opts.HandleCacheSize = DefaultHandleCacheSize
	}

	if logrus.IsLevelEnabled(logrus.TraceLevel) {
		nfs.Log.SetLevel(nfs.TraceLevel)
	} else if logrus.IsLevelEnabled(logrus.DebugLevel) {
		nfs.Log.SetLevel(nfs.DebugLevel)
	}

	handler := nfshelper.NewNullAuthHandler(NewFilesystem(volume))
	cached := nfshelper.NewCachingHandler(handler, opts.HandleCacheSize)

	return &Server{
		server:  &nfs.Server{Handler: cached},
		handler: cached,
		log:     opts.Logger,
	}
}

// ListenAndServe listens on addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is done. The listener is closed afterwards.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.server.Context = ctx
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.log.WithField("addr", listener.Addr().String()).Info("serving NFS")

	err := s.server.Serve(listener)
	if ctx.Err() != nil {
		s.log.Info("NFS server stopped")
		return nil
	}
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
