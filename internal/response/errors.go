package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrStaffAccessOnly   ErrCode = "STAFF_ACCESS_ONLY"
	ErrNotExamOwner      ErrCode = "NOT_EXAM_OWNER"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound         ErrCode = "NOT_FOUND"
	ErrLogNotFound      ErrCode = "LOG_NOT_FOUND"
	ErrQuestionNotFound ErrCode = "QUESTION_NOT_IN_EXAM"
	ErrAnswerNotFound   ErrCode = "ANSWER_NOT_FOUND"
	ErrClassNotFound    ErrCode = "CLASS_NOT_FOUND"
	ErrNoActivePeriod   ErrCode = "NO_ACTIVE_PERIOD"

	// ─── Exam-specific ─────────────────────────────────────────────────
	ErrExamNotFound      ErrCode = "EXAM_NOT_FOUND"
	ErrExamNotAvailable  ErrCode = "EXAM_NOT_AVAILABLE"
	ErrExamNotAssigned   ErrCode = "EXAM_NOT_ASSIGNED"
	ErrNotEnrolled       ErrCode = "NOT_ENROLLED"
	ErrInvalidEntryToken ErrCode = "INVALID_ENTRY_TOKEN"
	ErrNotManualQuestion ErrCode = "NOT_MANUALLY_GRADED"
	ErrScoreOutOfRange   ErrCode = "SCORE_OUT_OF_RANGE"

	// ─── Session state ─────────────────────────────────────────────────
	ErrSessionViolation  ErrCode = "SESSION_VIOLATION"
	ErrSessionDone       ErrCode = "SESSION_DONE"
	ErrSessionInProgress ErrCode = "SESSION_IN_PROGRESS"
	ErrSessionNotEntered ErrCode = "SESSION_NOT_ENTERED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal    ErrCode = "INTERNAL_ERROR"
	ErrUnavailable ErrCode = "SERVICE_UNAVAILABLE"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "Anda tidak memiliki izin untuk mengakses sumber daya ini."
	case ErrStudentAccessOnly:
		return "Sumber daya ini terbatas untuk siswa."
	case ErrStaffAccessOnly:
		return "Sumber daya ini terbatas untuk guru dan administrator."
	case ErrNotExamOwner:
		return "Anda bukan pemilik ujian ini."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."
	case ErrLogNotFound:
		return "Log ujian siswa tidak ditemukan."
	case ErrQuestionNotFound:
		return "Soal tidak termasuk dalam ujian ini."
	case ErrAnswerNotFound:
		return "Siswa belum menjawab soal ini."
	case ErrClassNotFound:
		return "Kelas tidak ditemukan."
	case ErrNoActivePeriod:
		return "Tidak ada tahun ajaran yang aktif."

	// ─── Exam-specific ─────────────────────────────────────────────────
	case ErrExamNotFound:
		return "Ujian tidak ditemukan."
	case ErrExamNotAvailable:
		return "Ujian ini saat ini tidak tersedia."
	case ErrExamNotAssigned:
		return "Ujian ini tidak ditujukan untuk kelas Anda."
	case ErrNotEnrolled:
		return "Anda belum terdaftar di kelas pada tahun ajaran aktif."
	case ErrInvalidEntryToken:
		return "Token masuk ujian tidak valid."
	case ErrNotManualQuestion:
		return "Soal ini dinilai otomatis."
	case ErrScoreOutOfRange:
		return "Nilai harus antara 0 dan bobot soal."

	// ─── Session state ─────────────────────────────────────────────────
	case ErrSessionViolation:
		return "Anda melakukan pelanggaran. Silakan hubungi pengawas."
	case ErrSessionDone:
		return "Anda sudah menyelesaikan ujian ini."
	case ErrSessionInProgress:
		return "Sesi ujian sedang berlangsung, silakan lanjutkan."
	case ErrSessionNotEntered:
		return "Anda belum masuk ke ujian ini."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	case ErrUnavailable:
		return "Layanan sedang tidak tersedia."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
