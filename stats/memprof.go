package stats

import (
	"fmt"
	"os"
	"path"
	"runtime/pprof"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/omniscale/osmtopo/log"
)

// MemProfiler writes a heap profile into dir every interval until the
// returned stop function is called. stop writes a final profile.
func MemProfiler(dir string, interval time.Duration) (stop func(), err error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, errors.Wrapf(err, "creating profile dir %s", dir)
	}

	i := 0
	write := func() {
		filename := path.Join(
			dir,
			fmt.Sprintf("memprof-%03d.pprof", i),
		)
		i++
		f, err := os.Create(filename)
		if err != nil {
			log.Println("[warn] writing heap profile:", err)
			return
		}
		defer f.Close()
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.Println("[warn] writing heap profile:", err)
		}
	}

	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for {
			select {
			case <-ticker.C:
				write()
			case <-done:
				ticker.Stop()
				write()
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			<-finished
		})
	}, nil
}
