package notify

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"

	"monitor-hub/config"
	"monitor-hub/core/metrics"
	"monitor-hub/core/store"
	"monitor-hub/core/utils"
)

type ChannelResult struct {
	Channel   string `json:"channel"`
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

type RuleDispatchResult struct {
	RuleID   int64           `json:"rule_id"`
	RuleName string          `json:"rule_name"`
	Results  []ChannelResult `json:"results,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Dispatcher fans a payload out to the channels of one or more alert rules.
// Every channel attempt is isolated: a failing or panicking sender only
// produces a failed ChannelResult for that slot.
type Dispatcher struct {
	mu      sync.RWMutex
	senders map[string]Sender
	logger  *utils.Logger
	metrics *metrics.Collector
}

func NewDispatcher(logger *utils.Logger, collector *metrics.Collector) *Dispatcher {
	return &Dispatcher{senders: map[string]Sender{}, logger: logger, metrics: collector}
}

// NewDefaultDispatcher registers the four built-in channel senders.
func NewDefaultDispatcher(cfg config.NotifyConfig, logger *utils.Logger, collector *metrics.Collector) *Dispatcher {
	d := NewDispatcher(logger, collector)
	d.Register(store.ChannelEmail, NewEmailSender(cfg.SMTP, logger))
	d.Register(store.ChannelSMS, NewSMSSender(cfg.SMS, cfg.HTTPTimeout, logger))
	d.Register(store.ChannelWebhook, NewWebhookSender(cfg.HTTPTimeout))
	d.Register(store.ChannelSlack, NewSlackSender(cfg.HTTPTimeout))
	return d
}

func (d *Dispatcher) Register(kind string, s Sender) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.senders[strings.ToLower(strings.TrimSpace(kind))] = s
}

func (d *Dispatcher) sender(kind string) Sender {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.senders[strings.ToLower(strings.TrimSpace(kind))]
}

func (d *Dispatcher) Dispatch(ctx context.Context, rule store.AlertRule, p Payload) RuleDispatchResult {
	res := RuleDispatchResult{RuleID: rule.ID, RuleName: rule.Name, Results: make([]ChannelResult, len(rule.Channels))}
	var wg sync.WaitGroup
	for i, ch := range rule.Channels {
		wg.Add(1)
		go func(i int, ch store.ChannelConfig) {
			defer wg.Done()
			res.Results[i] = d.sendOne(ctx, ch, p)
		}(i, ch)
	}
	wg.Wait()
	return res
}

func (d *Dispatcher) DispatchAll(ctx context.Context, rules []store.AlertRule, p Payload) []RuleDispatchResult {
	out := make([]RuleDispatchResult, len(rules))
	var wg sync.WaitGroup
	for i, rule := range rules {
		wg.Add(1)
		go func(i int, rule store.AlertRule) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					d.logger.Errorf("notify rule %d panic: %v\n%s", rule.ID, r, debug.Stack())
					out[i] = RuleDispatchResult{RuleID: rule.ID, RuleName: rule.Name, Error: fmt.Sprint(r)}
				}
			}()
			if err := ctx.Err(); err != nil {
				out[i] = RuleDispatchResult{RuleID: rule.ID, RuleName: rule.Name, Error: err.Error()}
				return
			}
			out[i] = d.Dispatch(ctx, rule, p)
		}(i, rule)
	}
	wg.Wait()
	return out
}

func (d *Dispatcher) sendOne(ctx context.Context, ch store.ChannelConfig, p Payload) (res ChannelResult) {
	res.Channel = ch.Kind
	defer func() {
		if r := recover(); r != nil {
			d.logger.Errorf("notify %s sender panic: %v\n%s", ch.Kind, r, debug.Stack())
			res.Success = false
			res.Error = fmt.Sprint(r)
		}
		d.record(res)
	}()
	s := d.sender(ch.Kind)
	if s == nil {
		res.Error = ErrUnknownChannel.Error()
		return res
	}
	id, err := s.Send(ctx, p, ch.Config)
	res.MessageID = id
	if err != nil {
		d.logger.WithField("channel", ch.Kind).Errorf("notify send: %v", err)
		res.Error = err.Error()
		return res
	}
	res.Success = true
	return res
}

func (d *Dispatcher) record(res ChannelResult) {
	if d.metrics == nil {
		return
	}
	status := store.DeliverySent
	if !res.Success {
		status = store.DeliveryFailed
	}
	d.metrics.IncCounter("notifications_total", 1, metrics.Tags{"channel": res.Channel, "status": status})
}
