package domain

// ManifestTrigger records why a passenger manifest was requested.
type ManifestTrigger string

const (
	ManifestAutoDeparted     ManifestTrigger = "AUTO_DEPARTED"
	ManifestAutoFullCapacity ManifestTrigger = "AUTO_FULL_CAPACITY"
	ManifestManualCompany    ManifestTrigger = "MANUAL_COMPANY"
)

// NotificationKind names a notification requested from the delivery service.
type NotificationKind string

const (
	NotifyTripAssignment NotificationKind = "TRIP_ASSIGNMENT"
	NotifyBookingHalted  NotificationKind = "BOOKING_HALTED"
	NotifyBookingResumed NotificationKind = "BOOKING_RESUMED"
)
