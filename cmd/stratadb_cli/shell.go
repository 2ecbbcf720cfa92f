package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sushant-115/stratadb/api/remote"
	"github.com/sushant-115/stratadb/core/environment"
	"github.com/sushant-115/stratadb/core/indexing/btree"
)

var errExit = errors.New("exit")

const helpText = `Commands:
  connect <env>                 connect to a served environment (alias: open)
  create <db> [dup] [recno]     create a database
  use <db>                      open a database and make it current
  put <key> <value>             insert a new key
  set <key> <value>             insert or overwrite
  dup <key> <value>             add a duplicate record
  append <value>                insert into a record number database
  get <key>
  del <key>
  names                         list databases
  rename <old> <new>
  drop <db>                     erase a database
  params [name...]
  flush                         checkpoint the environment
  begin | commit | abort
  help
  exit / quit`

// shell keeps the state of an interactive session.
type shell struct {
	client *remote.Client
	out    io.Writer

	env *remote.Env
	dbs map[uint16]*remote.DB
	cur uint16
	txn *remote.Txn
}

func newShell(client *remote.Client, out io.Writer) *shell {
	return &shell{client: client, out: out, dbs: make(map[uint16]*remote.DB)}
}

// prompt shows the connection, the current database and an open transaction.
func (s *shell) prompt() string {
	var b strings.Builder
	b.WriteString("stratadb")
	if s.cur != 0 {
		fmt.Fprintf(&b, ":%d", s.cur)
	}
	if s.txn != nil {
		b.WriteString("*")
	}
	b.WriteString("> ")
	return b.String()
}

func parseName(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid database name %q", s)
	}
	return uint16(n), nil
}

func (s *shell) needEnv() error {
	if s.env == nil {
		return errors.New("not connected; use 'connect <env>' first")
	}
	return nil
}

func (s *shell) current() (*remote.DB, error) {
	if err := s.needEnv(); err != nil {
		return nil, err
	}
	db, ok := s.dbs[s.cur]
	if !ok {
		return nil, errors.New("no database selected; use 'use <db>' first")
	}
	return db, nil
}

// encodeKey encodes a key argument. Record number databases take decimal numbers.
func encodeKey(db *remote.DB, arg string) ([]byte, error) {
	if db.Flags&environment.RecordNumber == 0 {
		return []byte(arg), nil
	}
	n, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid record number %q", arg)
	}
	return binary.BigEndian.AppendUint64(nil, n), nil
}

func formatKey(db *remote.DB, k []byte) string {
	if db.Flags&environment.RecordNumber != 0 && len(k) == 8 {
		return strconv.FormatUint(binary.BigEndian.Uint64(k), 10)
	}
	return string(k)
}

// disconnect closes the session. The server aborts the open transaction and
// closes the databases of the connection.
func (s *shell) disconnect(ctx context.Context) error {
	if s.env == nil {
		return nil
	}
	err := s.env.Disconnect(ctx)
	s.env, s.txn, s.cur = nil, nil, 0
	clear(s.dbs)
	return err
}

// closeDatabase closes the handle of name if the session holds one.
func (s *shell) closeDatabase(ctx context.Context, name uint16) error {
	db, ok := s.dbs[name]
	if !ok {
		return nil
	}
	if err := db.Close(ctx); err != nil {
		return err
	}
	delete(s.dbs, name)
	if s.cur == name {
		s.cur = 0
	}
	return nil
}

func (s *shell) insert(ctx context.Context, args []string, flags btree.InsertFlags) error {
	db, err := s.current()
	if err != nil {
		return err
	}
	if len(args) < 3 {
		return fmt.Errorf("%s command requires a key and a value", args[0])
	}
	k, err := encodeKey(db, args[1])
	if err != nil {
		return err
	}
	if _, err := db.Insert(ctx, s.txn, k, []byte(strings.Join(args[2:], " ")), flags); err != nil {
		return err
	}
	fmt.Fprintln(s.out, "OK")
	return nil
}

// processCommand runs one command. It returns errExit for exit and quit.
func (s *shell) processCommand(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("no command provided")
	}

	switch command := strings.ToLower(args[0]); command {
	case "connect", "open":
		if len(args) < 2 {
			return fmt.Errorf("%s command requires an environment name", command)
		}
		if err := s.disconnect(ctx); err != nil {
			return err
		}
		env, err := s.client.Connect(ctx, args[1])
		if err != nil {
			return err
		}
		s.env = env
		fmt.Fprintf(s.out, "Connected to %s (flags: %s)\n", args[1], env.Flags)
	case "create":
		if err := s.needEnv(); err != nil {
			return err
		}
		if len(args) < 2 {
			return errors.New("create command requires a database name")
		}
		name, err := parseName(args[1])
		if err != nil {
			return err
		}
		var flags environment.DBFlags
		for _, opt := range args[2:] {
			switch opt {
			case "dup":
				flags |= environment.EnableDuplicates
			case "recno":
				flags |= environment.RecordNumber
			default:
				return fmt.Errorf("unknown database option %q", opt)
			}
		}
		db, err := s.env.CreateDatabase(ctx, name, flags)
		if err != nil {
			return err
		}
		s.dbs[name], s.cur = db, name
		fmt.Fprintf(s.out, "Created database %d\n", name)
	case "use":
		if err := s.needEnv(); err != nil {
			return err
		}
		if len(args) < 2 {
			return errors.New("use command requires a database name")
		}
		name, err := parseName(args[1])
		if err != nil {
			return err
		}
		if _, ok := s.dbs[name]; !ok {
			db, err := s.env.OpenDatabase(ctx, name)
			if err != nil {
				return err
			}
			s.dbs[name] = db
		}
		s.cur = name
	case "put":
		return s.insert(ctx, args, 0)
	case "set":
		return s.insert(ctx, args, btree.Overwrite)
	case "dup":
		return s.insert(ctx, args, btree.Duplicate)
	case "append":
		db, err := s.current()
		if err != nil {
			return err
		}
		if len(args) < 2 {
			return errors.New("append command requires a value")
		}
		k, err := db.Insert(ctx, s.txn, nil, []byte(strings.Join(args[1:], " ")), 0)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Key: %s\n", formatKey(db, k))
	case "get":
		db, err := s.current()
		if err != nil {
			return err
		}
		if len(args) < 2 {
			return errors.New("get command requires a key")
		}
		k, err := encodeKey(db, args[1])
		if err != nil {
			return err
		}
		record, err := db.Find(ctx, s.txn, k)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%s\n", record)
	case "del", "delete":
		db, err := s.current()
		if err != nil {
			return err
		}
		if len(args) < 2 {
			return errors.New("del command requires a key")
		}
		k, err := encodeKey(db, args[1])
		if err != nil {
			return err
		}
		if err := db.Erase(ctx, s.txn, k); err != nil {
			return err
		}
		fmt.Fprintln(s.out, "OK")
	case "names":
		if err := s.needEnv(); err != nil {
			return err
		}
		names, err := s.env.DatabaseNames(ctx)
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Fprintln(s.out, n)
		}
	case "rename":
		if err := s.needEnv(); err != nil {
			return err
		}
		if len(args) < 3 {
			return errors.New("rename command requires <old> <new>")
		}
		oldName, err := parseName(args[1])
		if err != nil {
			return err
		}
		newName, err := parseName(args[2])
		if err != nil {
			return err
		}
		if err := s.closeDatabase(ctx, oldName); err != nil {
			return err
		}
		if err := s.env.RenameDatabase(ctx, oldName, newName); err != nil {
			return err
		}
		fmt.Fprintln(s.out, "OK")
	case "drop":
		if err := s.needEnv(); err != nil {
			return err
		}
		if len(args) < 2 {
			return errors.New("drop command requires a database name")
		}
		name, err := parseName(args[1])
		if err != nil {
			return err
		}
		if err := s.closeDatabase(ctx, name); err != nil {
			return err
		}
		if err := s.env.EraseDatabase(ctx, name); err != nil {
			return err
		}
		fmt.Fprintln(s.out, "OK")
	case "params":
		if err := s.needEnv(); err != nil {
			return err
		}
		var names []environment.Param
		for _, arg := range args[1:] {
			p, err := environment.ParseParam(arg)
			if err != nil {
				return err
			}
			names = append(names, p)
		}
		params, err := s.env.GetParameters(ctx, names...)
		if err != nil {
			return err
		}
		for _, p := range params {
			if p.Text != "" || p.Name == environment.ParamFilename || p.Name == environment.ParamLogDirectory {
				fmt.Fprintf(s.out, "%s = %s\n", p.Name, p.Text)
				continue
			}
			fmt.Fprintf(s.out, "%s = %d\n", p.Name, p.Value)
		}
	case "flush":
		if err := s.needEnv(); err != nil {
			return err
		}
		if err := s.env.Flush(ctx); err != nil {
			return err
		}
		fmt.Fprintln(s.out, "OK")
	case "begin":
		if err := s.needEnv(); err != nil {
			return err
		}
		if s.txn != nil {
			return errors.New("a transaction is already open")
		}
		txn, err := s.env.Begin(ctx)
		if err != nil {
			return err
		}
		s.txn = txn
	case "commit", "abort":
		if s.txn == nil {
			return errors.New("no open transaction")
		}
		txn := s.txn
		s.txn = nil
		if command == "commit" {
			return txn.Commit(ctx)
		}
		return txn.Abort(ctx)
	case "help":
		fmt.Fprintln(s.out, helpText)
	case "exit", "quit":
		return errExit
	default:
		return errors.New("unknown command. Type 'help' for a list of commands")
	}
	return nil
}
