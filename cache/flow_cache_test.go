package cache

import (
	"testing"
	"time"

	"github.com/mohitkumar/flowfirst/model"
	"github.com/stretchr/testify/require"
)

func TestFlowCache(t *testing.T) {
	ch := NewFlowCache(time.Minute)
	_, found := ch.GetFlow("f1")
	require.False(t, found)

	ch.SaveFlow(&model.Flow{Id: "f1", Name: "first"})
	f, found := ch.GetFlow("f1")
	require.True(t, found)
	require.Equal(t, "first", f.Name)

	ch.Invalidate("f1")
	_, found = ch.GetFlow("f1")
	require.False(t, found)
}

func TestFlowCacheExpires(t *testing.T) {
	ch := NewFlowCache(10 * time.Millisecond)
	ch.SaveFlow(&model.Flow{Id: "f1"})
	time.Sleep(30 * time.Millisecond)
	_, found := ch.GetFlow("f1")
	require.False(t, found)
}
