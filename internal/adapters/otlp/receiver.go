package otlp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/proto"

	collectortrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"

	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
	"github.com/AgentToolkit/agent-mentor/internal/core/ports"
	"github.com/AgentToolkit/agent-mentor/internal/core/services"
)

// TenantHeader identifies the tenant on both the gRPC metadata and the
// HTTP request.
const TenantHeader = "X-Tenant-Id"

// DataManagerResolver returns the data manager serving a tenant.
type DataManagerResolver func(ctx context.Context, tenantID string) (ports.DataManager, error)

// IngestHook is invoked after spans of a trace are persisted, typically to
// schedule background processing.
type IngestHook func(ctx context.Context, tenantID string, traces []*domain.Trace)

// Receiver implements the OTLP trace service. Each exported span is
// transcribed into the internal Span entity and persisted together with
// the synthesized Trace records.
type Receiver struct {
	collectortrace.UnimplementedTraceServiceServer

	logger       *slog.Logger
	resolve      DataManagerResolver
	hook         IngestHook
	rewriteStale bool
}

func NewReceiver(logger *slog.Logger, resolve DataManagerResolver, hook IngestHook, rewriteStale bool) *Receiver {
	return &Receiver{logger: logger, resolve: resolve, hook: hook, rewriteStale: rewriteStale}
}

// RegisterGRPC mounts the receiver on a gRPC server.
func (r *Receiver) RegisterGRPC(server *grpc.Server) {
	collectortrace.RegisterTraceServiceServer(server, r)
}

// Export handles the OTLP gRPC export call.
func (r *Receiver) Export(ctx context.Context, req *collectortrace.ExportTraceServiceRequest) (*collectortrace.ExportTraceServiceResponse, error) {
	tenantID := tenantFromMetadata(ctx)
	if err := r.ingest(ctx, tenantID, ConvertRequest(req.GetResourceSpans(), r.rewriteStale)); err != nil {
		r.logger.Error("otlp export failed", "tenant_id", tenantID, "error", err)
		return nil, err
	}
	return &collectortrace.ExportTraceServiceResponse{}, nil
}

// HTTPHandler serves POST /v1/traces with a protobuf body.
func (r *Receiver) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(req.Body)
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}
		var exportReq collectortrace.ExportTraceServiceRequest
		if err := proto.Unmarshal(body, &exportReq); err != nil {
			http.Error(w, "invalid protobuf payload", http.StatusBadRequest)
			return
		}

		tenantID := req.Header.Get(TenantHeader)
		if err := r.ingest(req.Context(), tenantID, ConvertRequest(exportReq.GetResourceSpans(), r.rewriteStale)); err != nil {
			r.logger.Error("otlp http export failed", "tenant_id", tenantID, "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		resp, err := proto.Marshal(&collectortrace.ExportTraceServiceResponse{})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/x-protobuf")
		_, _ = w.Write(resp)
	})
}

// ingest persists spans and their synthesized traces, then notifies the
// hook.
func (r *Receiver) ingest(ctx context.Context, tenantID string, spans []*domain.Span) error {
	if len(spans) == 0 {
		return nil
	}
	dm, err := r.resolve(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("resolve tenant %s: %w", tenantID, err)
	}

	spanElems := make([]domain.Element, len(spans))
	for i, s := range spans {
		spanElems[i] = s
	}
	if _, err := dm.BulkStore(ctx, spanElems, true); err != nil {
		return fmt.Errorf("store spans: %w", err)
	}

	traces := services.TracesFromSpans(spans)
	traceElems := make([]domain.Element, len(traces))
	for i, t := range traces {
		traceElems[i] = t
	}
	if _, err := dm.BulkStore(ctx, traceElems, true); err != nil {
		return fmt.Errorf("store traces: %w", err)
	}

	r.logger.Info("ingested spans", "tenant_id", tenantID, "spans", len(spans), "traces", len(traces))
	if r.hook != nil {
		r.hook(ctx, tenantID, traces)
	}
	return nil
}

func tenantFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(TenantHeader)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
