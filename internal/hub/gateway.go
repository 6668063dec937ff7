package hub

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Outbound hub RPC targets.
const (
	CmdSendLocation = "SendLocation"
	CmdGetStops     = "GetStops"
	CmdDemandRoute  = "DemandRoute"
	CmdGetFeedback  = "GetFeedback"
)

type locationArgs struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type feedbackArgs struct {
	Email   string `json:"email"`
	Message string `json:"message"`
}

// Gateway is the typed command façade over Adapter.Invoke. Results of
// RequestStops and DemandRoute arrive later as bus events; the calls only
// confirm the hub accepted the request.
type Gateway struct {
	a *Adapter
}

func (g *Gateway) tracer() trace.Tracer { return otel.Tracer("hub") }

// Connect forwards to the adapter so UI code can connect lazily.
func (g *Gateway) Connect() { g.a.Connect() }

func (g *Gateway) IsConnected() bool { return g.a.IsConnected() }

func (g *Gateway) SendLocation(ctx context.Context, latitude, longitude float64) error {
	ctx, span := g.tracer().Start(ctx, "hub.send_location", trace.WithAttributes(
		attribute.Float64("latitude", latitude),
		attribute.Float64("longitude", longitude),
	))
	defer span.End()
	return g.invoke(ctx, span, CmdSendLocation, locationArgs{Latitude: latitude, Longitude: longitude})
}

func (g *Gateway) RequestStops(ctx context.Context) error {
	ctx, span := g.tracer().Start(ctx, "hub.request_stops")
	defer span.End()
	return g.invoke(ctx, span, CmdGetStops)
}

func (g *Gateway) DemandRoute(ctx context.Context, routeID, stopID int) error {
	ctx, span := g.tracer().Start(ctx, "hub.demand_route", trace.WithAttributes(
		attribute.Int("route_id", routeID),
		attribute.Int("stop_id", stopID),
	))
	defer span.End()
	return g.invoke(ctx, span, CmdDemandRoute, routeID, stopID)
}

// SendFeedback submits a support message. A blank message is dropped
// without contacting the hub; the connection is checked first.
func (g *Gateway) SendFeedback(ctx context.Context, email, message string) error {
	ctx, span := g.tracer().Start(ctx, "hub.send_feedback")
	defer span.End()
	if !g.a.IsConnected() {
		err := &NotConnectedError{Target: CmdGetFeedback}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if strings.TrimSpace(message) == "" {
		span.SetAttributes(attribute.Bool("skipped", true))
		return nil
	}
	return g.invoke(ctx, span, CmdGetFeedback, feedbackArgs{Email: email, Message: message})
}

func (g *Gateway) invoke(ctx context.Context, span trace.Span, target string, args ...any) error {
	if _, err := g.a.Invoke(ctx, target, args...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}
