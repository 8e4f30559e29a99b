package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubResponse struct{ url string }

func (r stubResponse) URL() string           { return r.url }
func (r stubResponse) Status() int           { return 200 }
func (r stubResponse) Header(string) string  { return "" }
func (r stubResponse) Body() ([]byte, error) { return nil, nil }

func TestResponseListeners_RemoveOnlyOwnCallback(t *testing.T) {
	var l responseListeners
	seen := make([][]string, 2)

	removes := make([]func(), 2)
	for i := range removes {
		removes[i] = l.add(func(r Response) {
			seen[i] = append(seen[i], r.URL())
		})
	}

	l.dispatch(stubResponse{"https://a"})
	removes[0]()
	l.dispatch(stubResponse{"https://b"})
	removes[0]()

	assert.Equal(t, []string{"https://a"}, seen[0])
	assert.Equal(t, []string{"https://a", "https://b"}, seen[1])
}

func TestResponseListeners_RemoveDuringDispatch(t *testing.T) {
	var l responseListeners
	calls := 0

	var remove func()
	remove = l.add(func(Response) {
		calls++
		remove()
	})

	l.dispatch(stubResponse{"https://a"})
	l.dispatch(stubResponse{"https://b"})

	assert.Equal(t, 1, calls)
}
