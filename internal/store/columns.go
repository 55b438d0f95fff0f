package store

// Column names of the appointment tables. The upstream export that populates
// these files uses the clinic system's own (Russian) headers, so they are kept
// verbatim here.
const (
	ColPhone        = "Телефон"
	ColStartTime    = "ДатаНачала"
	ColDoctorID     = "ИДВрач"
	ColClinicID     = "ИДФилиал"
	ColConfirmation = "Подтверждение"
	ColReschedule   = "Перезапись"
	ColReview       = "Отзыв"
)

// Column names of the registration table. One row per registered user; only
// the id column of the user's own transport is populated.
const (
	ColRegPhone   = "phone"
	ColTelegramID = "tg_user_id"
	ColWhatsAppID = "wh_user_id"
)

// Flag values for the confirmation and reschedule columns. Unset is the empty
// string.
const (
	FlagSet      = "1"
	FlagDeclined = "-1"
)
