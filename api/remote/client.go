package remote

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	pb "github.com/sushant-115/stratadb/api/proto"
	"github.com/sushant-115/stratadb/core/environment"
	"github.com/sushant-115/stratadb/core/indexing/btree"
)

// Client calls a remote server. Engine failures come back as the same
// dberror sentinels a local environment returns.
type Client struct {
	rpc    pb.RemoteClient
	conn   *grpc.ClientConn // nil when the connection is not owned
	logger *zap.Logger
}

// Dial connects to the server at target.
func Dial(target string, logger *zap.Logger, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", target, err)
	}
	c := NewClient(conn, logger)
	c.conn = conn
	return c, nil
}

// NewClient uses an existing connection.
func NewClient(cc grpc.ClientConnInterface, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{rpc: pb.NewRemoteClient(cc), logger: logger}
}

// Close closes the connection if the client created it.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

type unaryCall func(ctx context.Context, in *pb.Request, opts ...grpc.CallOption) (*pb.Reply, error)

// call invokes rpc and turns a failed reply status into an error.
func (c *Client) call(ctx context.Context, method string, rpc unaryCall, req *pb.Request) (*pb.Reply, error) {
	reply, err := rpc(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("remote %s: %w", method, err)
	}
	if err := replyErr(reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// Env is a connection to one served environment.
type Env struct {
	c      *Client
	handle string
	Flags  environment.Flags
}

// DB is a remote database handle.
type DB struct {
	env    *Env
	handle string
	Flags  environment.DBFlags
}

// Txn is a remote transaction.
type Txn struct {
	env    *Env
	handle string
}

func (t *Txn) id() string {
	if t == nil {
		return ""
	}
	return t.handle
}

// Connect opens a connection to the environment served under name.
func (c *Client) Connect(ctx context.Context, name string) (*Env, error) {
	reply, err := c.call(ctx, "Connect", c.rpc.Connect, &pb.Request{Path: name})
	if err != nil {
		return nil, err
	}
	c.logger.Debug("connected", zap.String("env", name), zap.String("handle", reply.Handle))
	return &Env{c: c, handle: reply.Handle, Flags: environment.Flags(reply.Flags)}, nil
}

// Disconnect releases the connection. Databases opened through it are
// closed and its transactions aborted.
func (e *Env) Disconnect(ctx context.Context) error {
	_, err := e.c.call(ctx, "Disconnect", e.c.rpc.Disconnect, &pb.Request{Env: e.handle})
	return err
}

func (e *Env) RenameDatabase(ctx context.Context, oldName, newName uint16) error {
	_, err := e.c.call(ctx, "RenameDatabase", e.c.rpc.RenameDatabase, &pb.Request{Env: e.handle, Name: uint32(oldName), NewName: uint32(newName)})
	return err
}

func (e *Env) EraseDatabase(ctx context.Context, name uint16) error {
	_, err := e.c.call(ctx, "EraseDatabase", e.c.rpc.EraseDatabase, &pb.Request{Env: e.handle, Name: uint32(name)})
	return err
}

func (e *Env) DatabaseNames(ctx context.Context) ([]uint16, error) {
	reply, err := e.c.call(ctx, "DatabaseNames", e.c.rpc.DatabaseNames, &pb.Request{Env: e.handle})
	if err != nil {
		return nil, err
	}
	names := make([]uint16, len(reply.Names))
	for i, n := range reply.Names {
		names[i] = uint16(n)
	}
	return names, nil
}

// GetParameters returns the requested parameters, all of them when names is
// empty.
func (e *Env) GetParameters(ctx context.Context, names ...environment.Param) ([]environment.Parameter, error) {
	req := &pb.Request{Env: e.handle}
	for _, n := range names {
		req.Params = append(req.Params, uint32(n))
	}
	reply, err := e.c.call(ctx, "GetParameters", e.c.rpc.GetParameters, req)
	if err != nil {
		return nil, err
	}
	out := make([]environment.Parameter, len(reply.Params))
	for i, p := range reply.Params {
		out[i] = environment.Parameter{Name: environment.Param(p.Name), Value: p.Value, Text: p.Text}
	}
	return out, nil
}

func (e *Env) Flush(ctx context.Context) error {
	_, err := e.c.call(ctx, "Flush", e.c.rpc.Flush, &pb.Request{Env: e.handle})
	return err
}

func (e *Env) CreateDatabase(ctx context.Context, name uint16, flags environment.DBFlags) (*DB, error) {
	return e.database(ctx, "CreateDatabase", e.c.rpc.CreateDatabase, &pb.Request{Env: e.handle, Name: uint32(name), Flags: uint32(flags)})
}

func (e *Env) OpenDatabase(ctx context.Context, name uint16) (*DB, error) {
	return e.database(ctx, "OpenDatabase", e.c.rpc.OpenDatabase, &pb.Request{Env: e.handle, Name: uint32(name)})
}

func (e *Env) database(ctx context.Context, method string, rpc unaryCall, req *pb.Request) (*DB, error) {
	reply, err := e.c.call(ctx, method, rpc, req)
	if err != nil {
		return nil, err
	}
	return &DB{env: e, handle: reply.Handle, Flags: environment.DBFlags(reply.Flags)}, nil
}

func (e *Env) Begin(ctx context.Context) (*Txn, error) {
	reply, err := e.c.call(ctx, "TxnBegin", e.c.rpc.TxnBegin, &pb.Request{Env: e.handle})
	if err != nil {
		return nil, err
	}
	return &Txn{env: e, handle: reply.Handle}, nil
}

func (t *Txn) Commit(ctx context.Context) error {
	_, err := t.env.c.call(ctx, "TxnCommit", t.env.c.rpc.TxnCommit, &pb.Request{Env: t.env.handle, Txn: t.handle})
	return err
}

func (t *Txn) Abort(ctx context.Context) error {
	_, err := t.env.c.call(ctx, "TxnAbort", t.env.c.rpc.TxnAbort, &pb.Request{Env: t.env.handle, Txn: t.handle})
	return err
}

func (d *DB) Close(ctx context.Context) error {
	_, err := d.env.c.call(ctx, "CloseDatabase", d.env.c.rpc.CloseDatabase, &pb.Request{Db: d.handle})
	return err
}

// Insert stores record under key and returns the stored key, which differs
// from key for record number databases. txn may be nil.
func (d *DB) Insert(ctx context.Context, txn *Txn, key, record []byte, flags btree.InsertFlags) ([]byte, error) {
	if key == nil {
		key = []byte{}
	}
	if record == nil {
		record = []byte{}
	}
	reply, err := d.env.c.call(ctx, "Insert", d.env.c.rpc.Insert, &pb.Request{Db: d.handle, Txn: txn.id(), Key: key, Record: record,
		InsertFlags: uint32(flags)})
	if err != nil {
		return nil, err
	}
	return reply.Key, nil
}

func (d *DB) Find(ctx context.Context, txn *Txn, key []byte) ([]byte, error) {
	if key == nil {
		key = []byte{}
	}
	reply, err := d.env.c.call(ctx, "Find", d.env.c.rpc.Find, &pb.Request{Db: d.handle, Txn: txn.id(), Key: key})
	if err != nil {
		return nil, err
	}
	if reply.Record == nil {
		return []byte{}, nil
	}
	return reply.Record, nil
}

func (d *DB) Erase(ctx context.Context, txn *Txn, key []byte) error {
	if key == nil {
		key = []byte{}
	}
	_, err := d.env.c.call(ctx, "Erase", d.env.c.rpc.Erase, &pb.Request{Db: d.handle, Txn: txn.id(), Key: key})
	return err
}
