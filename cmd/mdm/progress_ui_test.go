package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/MDM/internal/app/harvest"
	"github.com/John-Robertt/MDM/internal/domain"
)

func TestProgressUI_Lines(t *testing.T) {
	var buf bytes.Buffer
	ui := newProgressUI(&buf)
	ui.outDir = "/tmp/out"

	ui.OnStart(harvest.Options{Input: "list.txt", Server: "prod", Token: "abcdefghijkl", Submit: true, Concurrency: 2})
	ui.OnPhaseDone("scan", map[string]any{"targets": 3, "rejected": 1}, 1500*time.Millisecond)
	ui.OnPhaseDone("exec", map[string]any{"workers": 2, "total_items": 2}, 0)
	ui.OnItemStart("https://a.example/1")
	ui.OnItemDone(1, 2, domain.ItemResult{URL: "https://a.example/1", Status: domain.StatusSubmitted, Title: "A", Links: 2, Message: "ok"}, time.Second)
	ui.OnItemDone(2, 2, domain.ItemResult{URL: "https://b.example/2", Status: domain.StatusFailed, ErrorCode: domain.ErrCodeNotFound, ErrorMsg: "未找到"}, 0)

	out := buf.String()
	require.Contains(t, out, "MDM harvest (submit)")
	require.Contains(t, out, "token: abcd…ijkl")
	require.Contains(t, out, "out: /tmp/out")
	require.Contains(t, out, "扫描: targets=3 rejected=1 (1.5s)")
	require.Contains(t, out, `[1/2] https://a.example/1 SUBMIT "A" links=2 ok (1.0s)`)
	require.Contains(t, out, "[2/2] https://b.example/2 FAIL not_found: 未找到")
	require.False(t, ui.tickerStarted, "最后一条完成后应停止 keepalive")
	require.Empty(t, ui.active)
}

func TestMaskTokenAndTruncate(t *testing.T) {
	require.Equal(t, "(未设置)", maskToken(" "))
	require.Equal(t, "****", maskToken("short"))
	require.Equal(t, "abc...", truncate("abcdefghij", 6))
	require.Equal(t, "ab", truncate("ab", 6))
	require.True(t, strings.HasPrefix(formatElapsed(3725*time.Second), "01:02:05"))
}
