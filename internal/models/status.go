package models

import (
	"regexp"
	"strings"
)

// Terminal status fields are normalized from whatever the SumUp API returns.
// Unmatched values always map to Unknown and never fail.

type ConnectionStatus string

const (
	ConnectionStatusPaired     ConnectionStatus = "Paired"
	ConnectionStatusProcessing ConnectionStatus = "Processing"
	ConnectionStatusExpired    ConnectionStatus = "Expired"
	ConnectionStatusUnknown    ConnectionStatus = "Unknown"
)

type OnlineStatus string

const (
	OnlineStatusOnline  OnlineStatus = "Online"
	OnlineStatusOffline OnlineStatus = "Offline"
	OnlineStatusUnknown OnlineStatus = "Unknown"
)

type ActivityStatus string

const (
	ActivityStatusIdle                ActivityStatus = "Idle"
	ActivityStatusSelectingTip        ActivityStatus = "Selecting Tip"
	ActivityStatusWaitingForCard      ActivityStatus = "Waiting For Card"
	ActivityStatusWaitingForPin       ActivityStatus = "Waiting For Pin"
	ActivityStatusWaitingForSignature ActivityStatus = "Waiting For Signature"
	ActivityStatusUpdatingFirmware    ActivityStatus = "Updating Firmware"
	ActivityStatusUnknown             ActivityStatus = "Unknown"
)

var statusSeparators = regexp.MustCompile(`[\s-]+`)

// normalizeStatusKey uppercases a raw status string and collapses
// whitespace/hyphen runs to underscores so "waiting-for card" and
// "WAITING_FOR_CARD" compare equal.
func normalizeStatusKey(value string) string {
	return strings.ToUpper(statusSeparators.ReplaceAllString(strings.TrimSpace(value), "_"))
}

var connectionStatusByKey = map[string]ConnectionStatus{
	"PAIRED":     ConnectionStatusPaired,
	"PROCESSING": ConnectionStatusProcessing,
	"EXPIRED":    ConnectionStatusExpired,
}

var onlineStatusByKey = map[string]OnlineStatus{
	"ONLINE":  OnlineStatusOnline,
	"OFFLINE": OnlineStatusOffline,
}

var activityStatusByKey = map[string]ActivityStatus{
	"IDLE":                  ActivityStatusIdle,
	"SELECTING_TIP":         ActivityStatusSelectingTip,
	"WAITING_FOR_CARD":      ActivityStatusWaitingForCard,
	"WAITING_FOR_PIN":       ActivityStatusWaitingForPin,
	"WAITING_FOR_SIGNATURE": ActivityStatusWaitingForSignature,
	"UPDATING_FIRMWARE":     ActivityStatusUpdatingFirmware,
}

// NormalizeConnectionStatus maps a raw reader status to a ConnectionStatus.
func NormalizeConnectionStatus(value string) ConnectionStatus {
	if status, ok := connectionStatusByKey[normalizeStatusKey(value)]; ok {
		return status
	}
	return ConnectionStatusUnknown
}

// NormalizeOnlineStatus maps a raw device status to an OnlineStatus.
func NormalizeOnlineStatus(value string) OnlineStatus {
	if status, ok := onlineStatusByKey[normalizeStatusKey(value)]; ok {
		return status
	}
	return OnlineStatusUnknown
}

// NormalizeActivityStatus maps a raw screen state to an ActivityStatus.
func NormalizeActivityStatus(value string) ActivityStatus {
	if status, ok := activityStatusByKey[normalizeStatusKey(value)]; ok {
		return status
	}
	return ActivityStatusUnknown
}
