package stats

import (
	"net/http"
	_ "net/http/pprof"

	"github.com/omniscale/osmtopo/log"
)

// StartHttpPProf serves the pprof handlers on bind in the background.
func StartHttpPProf(bind string) {
	go func() {
		log.Printf("[info] pprof listening on %s", bind)
		log.Println("[error]", http.ListenAndServe(bind, nil))
	}()
}
