/*
This is an example of application that will use the
engine package to render frames headlessly
*/
package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spaghettifunk/aurora/engine/config"
	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/spaghettifunk/aurora/engine/renderer"
	"github.com/spaghettifunk/aurora/engine/renderer/graph"
)

const configFile = "aurora.toml"

func main() {
	cvars := config.NewCvarStore()

	target := graph.NewCaptureTarget()
	r, err := renderer.New(target, cvars, renderer.Config{
		Width:        1920,
		Height:       1080,
		MemoryBudget: 2 << 30,
	})
	if err != nil {
		panic(err)
	}

	// Console variables load after registration so the file can override
	// technique defaults, and reload live while the demo runs.
	if _, err := os.Stat(configFile); err == nil {
		if err := cvars.LoadFile(configFile); err != nil {
			core.LogWarn("failed to load %s: %v", configFile, err)
		}
		if err := cvars.Watch(configFile); err != nil {
			core.LogWarn("failed to watch %s: %v", configFile, err)
		}
		defer cvars.Close()
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	done := make(chan struct{})
	go func() {
		<-sigCh
		close(done)
	}()

	r.InstanceCount = 1024

	last := time.Now()
loop:
	for frame := 0; frame < 600; frame++ {
		select {
		case <-done:
			break loop
		default:
		}

		now := time.Now()
		delta := now.Sub(last).Seconds()
		last = now

		target.Reset()
		if err := r.Render(delta); err != nil {
			core.LogError("%v", err)
			continue
		}

		if frame%120 == 0 {
			fps, msavg := r.Metrics().Frame()
			core.LogInfo("frame %d: %d submissions, %.1f fps, %.2f ms", frame, len(target.Submissions), fps, msavg)
		}
	}

	r.Shutdown()
}
