// Package control is the local API the running agent serves on a unix
// socket. CLI commands that read or change the registry, the rules or the
// ledger, or that request a launch, go through it while the server holds the
// store open.
package control

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/tvwarden/internal/apps"
	"github.com/goodtune/tvwarden/internal/detect"
	"github.com/goodtune/tvwarden/internal/policy"
	"github.com/goodtune/tvwarden/internal/storage"
)

// Service is the set of operator requests the agent answers. Local runs them
// in process; Client forwards them to a running server.
type Service interface {
	RequestLaunch(ctx context.Context, pkg string) (policy.LaunchResult, error)
	CheckLaunch(ctx context.Context, pkg string, at time.Time) (policy.LaunchResult, error)
	PreviewMonitor(ctx context.Context) (*MonitorPreview, error)
	Apps(ctx context.Context) ([]apps.Status, error)
	App(ctx context.Context, pkg string) (*apps.Status, error)
	SetAllowed(ctx context.Context, pkg, displayName string, allowed bool) (*storage.App, error)
	SetLimit(ctx context.Context, rule storage.TimeLimit) error
	ClearLimit(ctx context.Context, pkg string) error
	TodayUsage(ctx context.Context) (*UsageReport, error)
}

// MonitorPreview is what the poll loop would do with the current foreground
// app. Action is nil when nothing was detected.
type MonitorPreview struct {
	Detected  bool
	Detection detect.Detection
	Action    policy.MonitorAction
}

// UsageReport is today's ledger.
type UsageReport struct {
	Date    string               `json:"date"`
	Entries []storage.DailyUsage `json:"entries"`
}

type allowRequest struct {
	Allowed     bool   `json:"allowed"`
	DisplayName string `json:"display_name,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// launchReply is the wire form of a policy.LaunchResult.
type launchReply struct {
	Kind        string `json:"kind"`
	Package     string `json:"package"`
	Component   string `json:"component,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Start       string `json:"start,omitempty"`
	End         string `json:"end,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

func encodeLaunch(r policy.LaunchResult) launchReply {
	reply := launchReply{Kind: r.Kind()}
	switch r := r.(type) {
	case policy.Success:
		reply.Package, reply.Component = r.Package, r.Component
	case policy.AppNotInstalled:
		reply.Package = r.Package
	case policy.NotAllowed:
		reply.Package, reply.Reason = r.Package, r.Reason
	case policy.OutsideSchedule:
		reply.Package, reply.Start, reply.End = r.Package, r.Start, r.End
	case policy.TimeLimitReached:
		reply.Package, reply.DisplayName = r.Package, r.DisplayName
	}
	return reply
}

func (r launchReply) decode() (policy.LaunchResult, error) {
	switch r.Kind {
	case "success":
		return policy.Success{Package: r.Package, Component: r.Component}, nil
	case "app_not_installed":
		return policy.AppNotInstalled{Package: r.Package}, nil
	case "not_allowed":
		return policy.NotAllowed{Package: r.Package, Reason: r.Reason}, nil
	case "outside_schedule":
		return policy.OutsideSchedule{Package: r.Package, Start: r.Start, End: r.End}, nil
	case "time_limit_reached":
		return policy.TimeLimitReached{Package: r.Package, DisplayName: r.DisplayName}, nil
	default:
		return nil, fmt.Errorf("unknown launch result %q", r.Kind)
	}
}

// actionReply is the wire form of a policy.MonitorAction.
type actionReply struct {
	Kind             string `json:"kind"`
	Package          string `json:"package,omitempty"`
	DisplayName      string `json:"display_name,omitempty"`
	MinutesUsed      int    `json:"minutes_used,omitempty"`
	DailyLimit       int    `json:"daily_limit,omitempty"`
	IncrementMinutes int    `json:"increment_minutes,omitempty"`
	NewTotalMinutes  int    `json:"new_total_minutes,omitempty"`
}

func encodeAction(a policy.MonitorAction) actionReply {
	reply := actionReply{Kind: a.Kind()}
	switch a := a.(type) {
	case policy.BlockNotAllowed:
		reply.Package = a.Package
	case policy.EnforceTimeLimit:
		reply.Package, reply.DisplayName = a.Package, a.DisplayName
		reply.MinutesUsed, reply.DailyLimit = a.MinutesUsed, a.DailyLimit
	case policy.RecordUsage:
		reply.Package, reply.DisplayName = a.Package, a.DisplayName
		reply.IncrementMinutes, reply.NewTotalMinutes = a.IncrementMinutes, a.NewTotalMinutes
	}
	return reply
}

func (r actionReply) decode() (policy.MonitorAction, error) {
	switch r.Kind {
	case "ignore":
		return policy.Ignore{}, nil
	case "block_not_allowed":
		return policy.BlockNotAllowed{Package: r.Package}, nil
	case "enforce_time_limit":
		return policy.EnforceTimeLimit{
			Package:     r.Package,
			DisplayName: r.DisplayName,
			MinutesUsed: r.MinutesUsed,
			DailyLimit:  r.DailyLimit,
		}, nil
	case "record_usage":
		return policy.RecordUsage{
			Package:          r.Package,
			DisplayName:      r.DisplayName,
			IncrementMinutes: r.IncrementMinutes,
			NewTotalMinutes:  r.NewTotalMinutes,
		}, nil
	default:
		return nil, fmt.Errorf("unknown monitor action %q", r.Kind)
	}
}

type previewReply struct {
	Detected bool         `json:"detected"`
	Package  string       `json:"package,omitempty"`
	Method   string       `json:"method,omitempty"`
	Action   *actionReply `json:"action,omitempty"`
}

func encodePreview(p *MonitorPreview) previewReply {
	reply := previewReply{
		Detected: p.Detected,
		Package:  p.Detection.Package,
		Method:   p.Detection.Method,
	}
	if p.Action != nil {
		a := encodeAction(p.Action)
		reply.Action = &a
	}
	return reply
}

func (r previewReply) decode() (*MonitorPreview, error) {
	p := &MonitorPreview{
		Detected:  r.Detected,
		Detection: detect.Detection{Package: r.Package, Method: r.Method},
	}
	if r.Action != nil {
		action, err := r.Action.decode()
		if err != nil {
			return nil, err
		}
		p.Action = action
	}
	return p, nil
}
