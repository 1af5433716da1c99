package common

// User-visible chat texts. These exact strings are part of the bot's observable
// behavior; change them only deliberately.
const (
	MsgGreeting = "Hi! Send me an audio file and I will transcribe it and generate a report."
	MsgAck      = "Processing your audio file..."

	MsgNotAudio    = "Please send an audio file."
	MsgInvalidFile = "Please send a valid audio file or voice message."

	MsgFetchFailed      = "Failed to download audio file."
	MsgTranscodeFailed  = "Failed to compress audio."
	MsgTranscribeFailed = "Failed to transcribe audio."
	MsgGenerateFailed   = "Failed to generate report."
	MsgUnexpected       = "An error occurred while processing your audio file."

	MsgPromptSubject  = "Send me the new subject."
	MsgPromptMessage  = "Send me the new message."
	MsgReportNotFound = "Report not found."
	MsgReportSent     = "Report sent."
	MsgMailFailed     = "Failed to send email."
)
