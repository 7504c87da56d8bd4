package email

const (
	subjectLeadNotificationFmt = "New lead in %s"
)
