package stdoutwriter

import "fmt"

// Logger writes each log entry to the standard output as a separate line.
type Logger struct{}

func (l Logger) Write(p []byte) (n int, err error) {
	fmt.Println(string(p))
	return len(p), nil
}
