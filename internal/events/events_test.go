package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeMotion(t *testing.T) {
	ev, ok := Decode([]byte(`{"type":"event","event":{"source":"device","event":"motion detected","serialNumber":"CAM1","state":true}}`))
	require.True(t, ok)
	require.Equal(t, KindMotionDetected, ev.Kind)
	require.Equal(t, "CAM1", ev.Serial)
	require.Equal(t, "device", ev.Source)
	require.True(t, ev.State)

	ev, ok = Decode([]byte(`{"type":"event","event":{"event":"motion detected","serialNumber":"CAM1","state":false}}`))
	require.True(t, ok)
	require.False(t, ev.State)

	ev, ok = Decode([]byte(`{"type":"event","event":{"event":"motion detected","serialNumber":"CAM1"}}`))
	require.True(t, ok)
	require.False(t, ev.State, "missing state is not motion")
}

func TestDecodeChunks(t *testing.T) {
	ev, ok := Decode([]byte(`{"type":"event","event":{"event":"livestream video data","serialNumber":"CAM1","buffer":{"type":"Buffer","data":[0,0,1,255]}}}`))
	require.True(t, ok)
	require.Equal(t, KindVideoChunk, ev.Kind)
	require.Equal(t, []byte{0, 0, 1, 255}, ev.Payload)

	ev, ok = Decode([]byte(`{"type":"event","event":{"event":"livestream audio data","buffer":{"data":[7]}}}`))
	require.True(t, ok)
	require.Equal(t, KindAudioChunk, ev.Kind)
	require.Equal(t, []byte{7}, ev.Payload)

	ev, ok = Decode([]byte(`{"type":"event","event":{"event":"livestream audio data"}}`))
	require.True(t, ok)
	require.Empty(t, ev.Payload)
}

func TestDecodeRejects(t *testing.T) {
	cases := map[string]string{
		"not json":       `{"type":`,
		"result frame":   `{"type":"result","success":true,"messageId":"x"}`,
		"version frame":  `{"type":"version","driverVersion":"1.0"}`,
		"missing event":  `{"type":"event"}`,
		"byte too large": `{"type":"event","event":{"event":"livestream video data","buffer":{"data":[256]}}}`,
		"negative byte":  `{"type":"event","event":{"event":"livestream video data","buffer":{"data":[-1]}}}`,
		"event not obj":  `{"type":"event","event":"motion detected"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, ok := Decode([]byte(raw))
			require.False(t, ok)
		})
	}
}

func TestDecodeUnknownKindIsIgnorable(t *testing.T) {
	ev, ok := Decode([]byte(`{"type":"event","event":{"event":"property changed","serialNumber":"CAM1","name":"battery"}}`))
	require.True(t, ok)
	require.Equal(t, KindUnknown, ev.Kind)
	require.Equal(t, "property changed", ev.Wire)
}

func TestDecodeKindIsExactMatch(t *testing.T) {
	ev, ok := Decode([]byte(`{"type":"event","event":{"event":"Motion Detected","state":true}}`))
	require.True(t, ok)
	require.Equal(t, KindUnknown, ev.Kind)
}

func TestRouterDispatch(t *testing.T) {
	var got []Kind
	var dropped []string
	r := NewRouter().
		On(KindMotionDetected, func(ev Event) { got = append(got, ev.Kind) }).
		On(KindStreamStopped, func(ev Event) { got = append(got, ev.Kind) }).
		Fallback(func(ev Event) { dropped = append(dropped, ev.Wire) })

	require.True(t, r.DispatchRaw([]byte(`{"type":"event","event":{"event":"motion detected","state":true}}`)))
	require.True(t, r.DispatchRaw([]byte(`{"type":"event","event":{"event":"livestream stopped"}}`)))
	require.True(t, r.DispatchRaw([]byte(`{"type":"event","event":{"event":"station alarm"}}`)))
	require.False(t, r.DispatchRaw([]byte(`{"type":"result"}`)))

	require.Equal(t, []Kind{KindMotionDetected, KindStreamStopped}, got)
	require.Equal(t, []string{"station alarm"}, dropped)
}

func TestKindString(t *testing.T) {
	require.Equal(t, "video-chunk", KindVideoChunk.String())
	require.Equal(t, "unknown", Kind(99).String())
}
