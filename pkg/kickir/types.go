package kickir

import (
	"github.com/teschmitt/kickir/internal/domain"
	"github.com/teschmitt/kickir/internal/ports"
)

// Notification is what every sink receives: a numbered goal.
type Notification = domain.Notification

// GoalEvent is the item carried from the scan worker to the notifier.
type GoalEvent = domain.GoalEvent

// DetectedGoal is the result of one scan: None, Home or Away.
type DetectedGoal = domain.DetectedGoal

// Side names one goal of the table.
type Side = domain.Side

// ThreshValue is the per-side cutoff below which a beam counts as interrupted.
type ThreshValue = domain.ThreshValue

// Intensity is a raw light sample.
type Intensity = domain.Intensity

// Channel is a physical sensor input.
type Channel = domain.Channel

const (
	GoalNone = domain.GoalNone
	GoalHome = domain.GoalHome
	GoalAway = domain.GoalAway

	SideHome = domain.SideHome
	SideAway = domain.SideAway
)

// Sensor reads light intensities (IIO ADC, OPC UA, simulators, etc.).
type Sensor = ports.Sensor

// Sink delivers notifications to any downstream system.
type Sink = ports.Sink

// GoalQueue decouples the scan worker from the notifier.
type GoalQueue = ports.GoalQueue

// ControlHandler applies raw threshold writes.
type ControlHandler = ports.ControlHandler

// ControlEndpoint feeds remote writes into a ControlHandler.
type ControlEndpoint = ports.ControlEndpoint

// Observability emits metrics and structured logs.
type Observability = ports.Observability

// Field is a structured log field used by Observability implementations.
type Field = ports.Field

// ErrQueueClosed is returned once the goal queue has been closed and drained.
var ErrQueueClosed = ports.ErrQueueClosed
