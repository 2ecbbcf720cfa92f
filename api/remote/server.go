package remote

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	pb "github.com/sushant-115/stratadb/api/proto"
	"github.com/sushant-115/stratadb/core/dberror"
	"github.com/sushant-115/stratadb/core/environment"
	"github.com/sushant-115/stratadb/core/indexing/btree"
	"github.com/sushant-115/stratadb/core/transaction"
	internaltelemetry "github.com/sushant-115/stratadb/internal/telemetry"
	"github.com/sushant-115/stratadb/pkg/telemetry"
)

var serviceName = pb.Remote_ServiceDesc.ServiceName

type envHandle struct {
	name string
	env  *environment.Environment
}

type dbHandle struct {
	env string
	db  *environment.Database
}

type txnHandle struct {
	env string
	txn *transaction.Transaction
}

// Server serves the environments added to it. Clients connect to an
// environment by the name it was added under and address everything else
// through uuid handles.
type Server struct {
	pb.UnimplementedRemoteServer

	served *xsync.MapOf[string, *environment.Environment]
	envs   *xsync.MapOf[string, *envHandle]
	dbs    *xsync.MapOf[string, *dbHandle]
	txns   *xsync.MapOf[string, *txnHandle]

	logger  *zap.Logger
	tracer  trace.Tracer
	metrics *internaltelemetry.RemoteMetrics
}

var _ pb.RemoteServer = (*Server)(nil)

// NewServer creates a server without environments.
func NewServer(tel *telemetry.Telemetry, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics, err := internaltelemetry.NewRemoteMetrics(tel.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC metrics: %w", err)
	}
	return &Server{
		served:  xsync.NewMapOf[string, *environment.Environment](),
		envs:    xsync.NewMapOf[string, *envHandle](),
		dbs:     xsync.NewMapOf[string, *dbHandle](),
		txns:    xsync.NewMapOf[string, *txnHandle](),
		logger:  logger,
		tracer:  tel.Tracer,
		metrics: metrics,
	}, nil
}

// AddEnvironment makes env available to clients under name. The server does
// not own env; the caller closes it after the server stopped.
func (s *Server) AddEnvironment(name string, env *environment.Environment) error {
	if name == "" || env == nil {
		return fmt.Errorf("%w: environment and name are required", dberror.ErrInvalidParameter)
	}
	if _, loaded := s.served.LoadOrStore(name, env); loaded {
		return fmt.Errorf("%w: environment %q is already served", dberror.ErrInvalidParameter, name)
	}
	s.logger.Info("serving environment", zap.String("name", name), zap.String("path", env.Path()))
	return nil
}

// Register adds the service to r.
func (s *Server) Register(r grpc.ServiceRegistrar) {
	pb.RegisterRemoteServer(r, s)
}

// Close releases every handle still held by clients.
func (s *Server) Close() {
	s.envs.Range(func(id string, _ *envHandle) bool {
		s.releaseEnv(id)
		return true
	})
}

func (s *Server) countHandle(kind string, delta int64) {
	s.metrics.OpenHandlesUpDownCounter.Add(context.Background(), delta,
		metric.WithAttributes(attribute.String("kind", kind)))
}

func okReply() *pb.Reply { return &pb.Reply{} }

func failed(err error) *pb.Reply {
	return &pb.Reply{Status: int32(dberror.Code(err)), Message: err.Error()}
}

func unknownHandle(kind, id string) error {
	return fmt.Errorf("%w: unknown %s handle %q", dberror.ErrInvalidParameter, kind, id)
}

func (s *Server) env(id string) (*envHandle, error) {
	h, found := s.envs.Load(id)
	if !found {
		return nil, unknownHandle("environment", id)
	}
	return h, nil
}

func (s *Server) db(id string) (*dbHandle, error) {
	h, found := s.dbs.Load(id)
	if !found {
		return nil, unknownHandle("database", id)
	}
	return h, nil
}

// txn returns the transaction of id, nil for an empty id. It must belong to
// environment handle env.
func (s *Server) txn(id, env string) (*transaction.Transaction, error) {
	if id == "" {
		return nil, nil
	}
	h, found := s.txns.Load(id)
	if !found {
		return nil, unknownHandle("transaction", id)
	}
	if h.env != env {
		return nil, fmt.Errorf("%w: transaction %q belongs to another connection", dberror.ErrInvalidParameter, id)
	}
	return h.txn, nil
}

// releaseEnv drops an environment handle with the databases and
// transactions opened through it.
func (s *Server) releaseEnv(id string) {
	h, found := s.envs.LoadAndDelete(id)
	if !found {
		return
	}
	s.countHandle("environment", -1)
	s.txns.Range(func(tid string, t *txnHandle) bool {
		if t.env == id {
			s.txns.Delete(tid)
			s.countHandle("transaction", -1)
			if err := h.env.Abort(t.txn); err != nil {
				s.logger.Warn("failed to abort transaction of closed connection", zap.String("txn", tid), zap.Error(err))
			}
		}
		return true
	})
	s.dbs.Range(func(did string, d *dbHandle) bool {
		if d.env == id {
			s.dbs.Delete(did)
			s.countHandle("database", -1)
			if err := d.db.Close(); err != nil {
				s.logger.Warn("failed to close database of closed connection", zap.String("db", did), zap.Error(err))
			}
		}
		return true
	})
}

func (s *Server) Connect(_ context.Context, req *pb.Request) (*pb.Reply, error) {
	env, found := s.served.Load(req.Path)
	if !found {
		return failed(fmt.Errorf("%w: no environment served as %q", dberror.ErrInvalidParameter, req.Path)), nil
	}
	params, err := env.GetParameters(environment.ParamFlags)
	if err != nil {
		return failed(err), nil
	}
	id := uuid.NewString()
	s.envs.Store(id, &envHandle{name: req.Path, env: env})
	s.countHandle("environment", 1)
	s.logger.Debug("client connected", zap.String("env", req.Path), zap.String("handle", id))
	return &pb.Reply{Handle: id, Flags: uint32(params[0].Value)}, nil
}

func (s *Server) Disconnect(_ context.Context, req *pb.Request) (*pb.Reply, error) {
	if _, err := s.env(req.Env); err != nil {
		return failed(err), nil
	}
	s.releaseEnv(req.Env)
	return okReply(), nil
}

func (s *Server) RenameDatabase(_ context.Context, req *pb.Request) (*pb.Reply, error) {
	h, err := s.env(req.Env)
	if err != nil {
		return failed(err), nil
	}
	if err := h.env.RenameDatabase(uint16(req.Name), uint16(req.NewName)); err != nil {
		return failed(err), nil
	}
	return okReply(), nil
}

func (s *Server) EraseDatabase(_ context.Context, req *pb.Request) (*pb.Reply, error) {
	h, err := s.env(req.Env)
	if err != nil {
		return failed(err), nil
	}
	if err := h.env.EraseDatabase(uint16(req.Name)); err != nil {
		return failed(err), nil
	}
	return okReply(), nil
}

func (s *Server) DatabaseNames(_ context.Context, req *pb.Request) (*pb.Reply, error) {
	h, err := s.env(req.Env)
	if err != nil {
		return failed(err), nil
	}
	names, err := h.env.DatabaseNames()
	if err != nil {
		return failed(err), nil
	}
	reply := okReply()
	for _, n := range names {
		reply.Names = append(reply.Names, uint32(n))
	}
	return reply, nil
}

func (s *Server) GetParameters(_ context.Context, req *pb.Request) (*pb.Reply, error) {
	h, err := s.env(req.Env)
	if err != nil {
		return failed(err), nil
	}
	names := make([]environment.Param, len(req.Params))
	for i, p := range req.Params {
		names[i] = environment.Param(p)
	}
	params, err := h.env.GetParameters(names...)
	if err != nil {
		return failed(err), nil
	}
	reply := okReply()
	for _, p := range params {
		reply.Params = append(reply.Params, &pb.Parameter{Name: uint32(p.Name), Value: p.Value, Text: p.Text})
	}
	return reply, nil
}

func (s *Server) Flush(ctx context.Context, req *pb.Request) (*pb.Reply, error) {
	h, err := s.env(req.Env)
	if err != nil {
		return failed(err), nil
	}
	if err := h.env.Flush(ctx); err != nil {
		return failed(err), nil
	}
	return okReply(), nil
}

func (s *Server) addDatabase(env string, db *environment.Database) *pb.Reply {
	id := uuid.NewString()
	s.dbs.Store(id, &dbHandle{env: env, db: db})
	s.countHandle("database", 1)
	return &pb.Reply{Handle: id, Flags: uint32(db.Flags())}
}

func (s *Server) CreateDatabase(_ context.Context, req *pb.Request) (*pb.Reply, error) {
	h, err := s.env(req.Env)
	if err != nil {
		return failed(err), nil
	}
	db, err := h.env.CreateDatabase(uint16(req.Name), environment.DBFlags(req.Flags))
	if err != nil {
		return failed(err), nil
	}
	return s.addDatabase(req.Env, db), nil
}

func (s *Server) OpenDatabase(_ context.Context, req *pb.Request) (*pb.Reply, error) {
	h, err := s.env(req.Env)
	if err != nil {
		return failed(err), nil
	}
	db, err := h.env.OpenDatabase(uint16(req.Name))
	if err != nil {
		return failed(err), nil
	}
	return s.addDatabase(req.Env, db), nil
}

func (s *Server) CloseDatabase(_ context.Context, req *pb.Request) (*pb.Reply, error) {
	d, err := s.db(req.Db)
	if err != nil {
		return failed(err), nil
	}
	if err := d.db.Close(); err != nil {
		return failed(err), nil
	}
	s.dbs.Delete(req.Db)
	s.countHandle("database", -1)
	return okReply(), nil
}

func (s *Server) Insert(_ context.Context, req *pb.Request) (*pb.Reply, error) {
	d, err := s.db(req.Db)
	if err != nil {
		return failed(err), nil
	}
	txn, err := s.txn(req.Txn, d.env)
	if err != nil {
		return failed(err), nil
	}
	key, err := d.db.Insert(txn, req.Key, req.Record, btree.InsertFlags(req.InsertFlags))
	if err != nil {
		return failed(err), nil
	}
	return &pb.Reply{Key: key}, nil
}

func (s *Server) Find(_ context.Context, req *pb.Request) (*pb.Reply, error) {
	d, err := s.db(req.Db)
	if err != nil {
		return failed(err), nil
	}
	txn, err := s.txn(req.Txn, d.env)
	if err != nil {
		return failed(err), nil
	}
	rec, err := d.db.Find(txn, req.Key)
	if err != nil {
		return failed(err), nil
	}
	return &pb.Reply{Key: req.Key, Record: rec}, nil
}

func (s *Server) Erase(_ context.Context, req *pb.Request) (*pb.Reply, error) {
	d, err := s.db(req.Db)
	if err != nil {
		return failed(err), nil
	}
	txn, err := s.txn(req.Txn, d.env)
	if err != nil {
		return failed(err), nil
	}
	if err := d.db.Erase(txn, req.Key); err != nil {
		return failed(err), nil
	}
	return okReply(), nil
}

func (s *Server) TxnBegin(_ context.Context, req *pb.Request) (*pb.Reply, error) {
	h, err := s.env(req.Env)
	if err != nil {
		return failed(err), nil
	}
	txn, err := h.env.Begin()
	if err != nil {
		return failed(err), nil
	}
	id := uuid.NewString()
	s.txns.Store(id, &txnHandle{env: req.Env, txn: txn})
	s.countHandle("transaction", 1)
	return &pb.Reply{Handle: id}, nil
}

// finishTxn commits or aborts the transaction of req. The handle stays
// valid when commit fails with the transaction still running.
func (s *Server) finishTxn(req *pb.Request, finish func(env *environment.Environment, txn *transaction.Transaction) error) *pb.Reply {
	t, found := s.txns.Load(req.Txn)
	if !found {
		return failed(unknownHandle("transaction", req.Txn))
	}
	h, err := s.env(t.env)
	if err != nil {
		return failed(err)
	}
	err = finish(h.env, t.txn)
	if t.txn.State != transaction.TxnStateRunning {
		s.txns.Delete(req.Txn)
		s.countHandle("transaction", -1)
	}
	if err != nil {
		return failed(err)
	}
	return okReply()
}

func (s *Server) TxnCommit(ctx context.Context, req *pb.Request) (*pb.Reply, error) {
	return s.finishTxn(req, func(env *environment.Environment, txn *transaction.Transaction) error {
		return env.Commit(ctx, txn)
	}), nil
}

func (s *Server) TxnAbort(_ context.Context, req *pb.Request) (*pb.Reply, error) {
	return s.finishTxn(req, func(env *environment.Environment, txn *transaction.Transaction) error {
		return env.Abort(txn)
	}), nil
}
