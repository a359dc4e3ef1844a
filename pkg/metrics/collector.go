package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arthall/onboard-bot/internal/workflow"
)

var (
	botCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_commands_total",
			Help: "Total number of bot commands received labeled by command and status",
		},
		[]string{"command", "status"},
	)
	commandDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "command_duration_seconds",
			Help:    "Duration of bot commands in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)
	registrationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "registrations_total",
			Help: "Total number of completed registrations",
		},
	)
	giveawayNumbersAssigned = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "giveaway_numbers_assigned",
			Help: "Highest giveaway number assigned so far",
		},
	)
	workflowTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_transitions_total",
			Help: "Total number of workflow state transitions",
		},
		[]string{"from", "to"},
	)
	broadcastDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_deliveries_total",
			Help: "Broadcast delivery attempts labeled by outcome",
		},
		[]string{"status"},
	)
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors split by type and severity",
		},
		[]string{"type", "severity"},
	)
	usersByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "users_by_state",
			Help: "Number of users per workflow state",
		},
		[]string{"state"},
	)
	activeWorkflows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_workflows",
			Help: "Number of users with a live workflow state",
		},
	)
)

var trackedStates = []workflow.State{
	workflow.StateAwaitingPhone,
	workflow.StateComplete,
}

func init() {
	workflow.RegisterTransitionRecorder(RecordWorkflowTransition)
}

// RecordCommand increments command counters and records duration.
func RecordCommand(command, status string, duration time.Duration) {
	if command == "" {
		command = "unknown"
	}
	if status == "" {
		status = "unknown"
	}

	botCommandsTotal.WithLabelValues(command, status).Inc()
	commandDurationSeconds.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordRegistration counts a completed registration and tracks the
// highest number handed out.
func RecordRegistration(giveawayNumber int) {
	registrationsTotal.Inc()
	if giveawayNumber > 0 {
		giveawayNumbersAssigned.Set(float64(giveawayNumber))
	}
}

// RecordWorkflowTransition tracks FSM transitions.
func RecordWorkflowTransition(from, to string) {
	if from == "" {
		from = "unknown"
	}
	if to == "" {
		to = "unknown"
	}

	workflowTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordBroadcastDelivery counts one broadcast send attempt.
func RecordBroadcastDelivery(delivered bool) {
	status := "delivered"
	if !delivered {
		status = "failed"
	}

	broadcastDeliveriesTotal.WithLabelValues(status).Inc()
}

// RecordError increments error counters with metadata.
func RecordError(errType, severity string) {
	if errType == "" {
		errType = "unknown"
	}
	if severity == "" {
		severity = "unknown"
	}

	errorsTotal.WithLabelValues(errType, severity).Inc()
}

// SetUsersByState updates the gauge for the given state.
func SetUsersByState(state string, count int) {
	if state == "" {
		state = "unknown"
	}

	usersByState.WithLabelValues(state).Set(float64(count))
}

// StateCollector periodically gathers workflow state counts and emits gauge metrics.
type StateCollector struct {
	fsm workflow.Machine
}

// NewStateCollector builds a metrics collector bound to the provided workflow machine.
func NewStateCollector(fsm workflow.Machine) *StateCollector {
	return &StateCollector{fsm: fsm}
}

// Run polls the workflow every 10 seconds, updating the gauges until ctx is cancelled.
func (c *StateCollector) Run(ctx context.Context) {
	if c == nil || c.fsm == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		_ = c.collect(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(10 * time.Second):
		}
	}
}

func (c *StateCollector) collect(ctx context.Context) error {
	states, err := c.fsm.GetAllStates(ctx)
	if err != nil {
		return err
	}

	activeWorkflows.Set(float64(len(states)))

	stateCounts := make(map[string]int, len(states))
	for _, st := range states {
		label := "unknown"
		if st != nil && st.CurrentState != "" {
			label = string(st.CurrentState)
		}
		stateCounts[label]++
	}

	usersByState.Reset()

	for _, tracked := range trackedStates {
		label := string(tracked)
		SetUsersByState(label, stateCounts[label])
		delete(stateCounts, label)
	}

	for label, count := range stateCounts {
		SetUsersByState(label, count)
	}

	return nil
}
