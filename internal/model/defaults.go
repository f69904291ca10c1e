package model

// Message defaults applied when a dispatch request leaves fields blank.
const (
	DefaultSubject  = "Your payslip"
	DefaultBody     = "Your payslip is attached to this email."
	DefaultFromName = "Payroll System"

	PDFContentType = "application/pdf"
)
