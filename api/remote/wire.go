// Package remote serves environments over gRPC. Every call carries one
// Request wrapper and answers with one Reply wrapper; both are defined in
// api/proto/remote.proto.
package remote

import (
	pb "github.com/sushant-115/stratadb/api/proto"
	"github.com/sushant-115/stratadb/core/dberror"
)

// replyErr turns the status of r back into an engine error.
func replyErr(r *pb.Reply) error {
	return dberror.FromCode(int(r.GetStatus()), r.GetMessage())
}
