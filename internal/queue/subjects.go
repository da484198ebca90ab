package queue

import "strings"

const (
	DetectionsStreamName  = "DETECTIONS"
	DetectionsSubjectBase = "detections"

	ControlSubject    = "overlay.control"
	FramesSubjectBase = "overlay.frames"
	EventsSubjectBase = "overlay.events"
)

var tokenReplacer = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_", "\t", "_")

// subjectToken makes a stream id usable as a single NATS subject token.
func subjectToken(id string) string {
	if id == "" {
		return "_"
	}
	return tokenReplacer.Replace(id)
}

func DetectionsSubject(streamID string) string {
	return DetectionsSubjectBase + "." + subjectToken(streamID)
}

func FramesSubject(streamID string) string {
	return FramesSubjectBase + "." + subjectToken(streamID)
}

func EventsSubject(streamID string) string {
	return EventsSubjectBase + "." + subjectToken(streamID)
}

// StreamIDFromSubject returns the last token of a per-stream subject.
func StreamIDFromSubject(subject string) string {
	i := strings.LastIndexByte(subject, '.')
	if i < 0 || i == len(subject)-1 {
		return ""
	}
	return subject[i+1:]
}
