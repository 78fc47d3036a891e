package display

import (
	"fmt"
	"io"

	"github.com/harrison/collabgen/internal/pipeline"
)

// StreamEvents prints every event from events until the channel closes.
func StreamEvents(w io.Writer, events <-chan pipeline.Event) {
	for e := range events {
		fmt.Fprintln(w, pipeline.FormatEvent(e))
	}
}
