package openpgp

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregLibert/openpgp-token/pkg/iso7816"
)

// The worker drives the same factory flow through the host-side client,
// proving the Transmitter plumbing end to end.
func TestWorkerWithClient(t *testing.T) {
	tok, _ := newTestToken(t)
	worker := NewWorker(tok)
	defer worker.Close()

	client := iso7816.NewClient(worker)
	cls := testClass(t)

	trace, err := client.Send(iso7816.SelectByAID(cls, RID))
	require.NoError(t, err)
	require.True(t, trace.IsSuccess())

	trace, err = client.Send(iso7816.Verify(cls, iso7816.RefPW1Sign, []byte(DefaultPW1)))
	require.NoError(t, err)
	assert.Equal(t, iso7816.SWSuccess, trace.Status())

	trace, err = client.Send(iso7816.GetData(cls, 0x004F))
	require.NoError(t, err)
	assert.Equal(t, DefaultAID, trace.Data())
}

// Commands issued concurrently still execute one at a time, in some serial
// order, each receiving a complete response.
func TestWorkerSerializes(t *testing.T) {
	tok, _ := newTestToken(t)
	worker := NewWorker(tok)
	defer worker.Close()

	selectRaw, err := iso7816.SelectByAID(testClass(t), RID).Bytes()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := worker.Transmit(selectRaw)
			assert.NoError(t, err)
			assert.GreaterOrEqual(t, len(resp), 2)
		}()
	}
	wg.Wait()
}

func TestWorkerClose(t *testing.T) {
	tok, _ := newTestToken(t)
	worker := NewWorker(tok)
	worker.Close()
	worker.Close() // idempotent

	_, err := worker.Transmit([]byte{0x00, 0xA4, 0x00, 0x00})
	assert.ErrorIs(t, err, ErrWorkerClosed)
}
