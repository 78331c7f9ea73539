package guide

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

var programNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:guide-resolver:program"))

// programID derives a stable identifier from the parts that make a slot
// unique, so re-resolving the same schedule yields the same ids.
func programID(channel string, start time.Time, title string) string {
	key := channel + "|" + start.UTC().Format(time.RFC3339) + "|" + title
	return uuid.NewSHA1(programNamespace, []byte(key)).String()
}

func fallbackProgramID(channelName string, slot int, start time.Time) string {
	key := "fallback|" + channelName + "|" + strconv.Itoa(slot) + "|" + start.UTC().Format(time.RFC3339)
	return uuid.NewSHA1(programNamespace, []byte(key)).String()
}
