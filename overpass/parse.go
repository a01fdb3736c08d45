package overpass

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	osm "github.com/omniscale/go-osm"
	"github.com/omniscale/osmtopo/element"
	"github.com/omniscale/osmtopo/log"

	"github.com/pkg/errors"
)

type rawResponse struct {
	Generator string       `json:"generator"`
	Remark    string       `json:"remark"`
	Elements  []rawElement `json:"elements"`
}

type rawElement struct {
	Type string `json:"type"`

	// meta
	ID        int64                  `json:"id"`
	Tags      map[string]interface{} `json:"tags"`
	Timestamp string                 `json:"timestamp"`
	Version   int32                  `json:"version"`
	Changeset int64                  `json:"changeset"`
	User      string                 `json:"user"`
	UID       int32                  `json:"uid"`

	// node
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`

	// way
	Nodes []int64 `json:"nodes"`

	// relation
	Members []rawMember `json:"members"`
}

type rawMember struct {
	Type string `json:"type"`
	Ref  int64  `json:"ref"`
	Role string `json:"role"`
}

// ParseJSON reads the Overpass JSON output format ([out:json]).
// Tag values that are not strings are converted to their JSON spelling.
func ParseJSON(r io.Reader) (*element.Dataset, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var resp rawResponse
	if err := dec.Decode(&resp); err != nil {
		return nil, err
	}
	if resp.Remark != "" {
		log.Printf("[warn] overpass remark: %s", resp.Remark)
	}

	ds := element.NewDataset()
	for _, el := range resp.Elements {
		elem := osm.Element{
			ID:       el.ID,
			Tags:     tags(el.Tags),
			Metadata: metadata(el),
		}
		switch el.Type {
		case "node":
			if el.Lat == nil || el.Lon == nil {
				return nil, errors.Errorf("node %d without coordinates", el.ID)
			}
			ds.AddNode(&osm.Node{Element: elem, Lat: *el.Lat, Long: *el.Lon})
		case "way":
			refs := make([]int64, len(el.Nodes))
			copy(refs, el.Nodes)
			ds.AddWay(&osm.Way{Element: elem, Refs: refs})
		case "relation":
			rel := &osm.Relation{Element: elem}
			for _, m := range el.Members {
				typ, ok := element.TypeValues[m.Type]
				if !ok {
					return nil, errors.Errorf("relation %d: unknown member type %q", el.ID, m.Type)
				}
				rel.Members = append(rel.Members, osm.Member{
					ID:   m.Ref,
					Type: osm.MemberType(typ),
					Role: m.Role,
				})
			}
			ds.AddRelation(rel)
		default:
			log.Printf("[debug] skipping element %s/%d", el.Type, el.ID)
		}
	}
	return ds, nil
}

// ParseFile reads a saved Overpass JSON response.
func ParseFile(fname string) (*element.Dataset, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	ds, err := ParseJSON(f)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", fname)
	}
	return ds, nil
}

func tags(raw map[string]interface{}) osm.Tags {
	if len(raw) == 0 {
		return nil
	}
	result := make(osm.Tags, len(raw))
	for k, v := range raw {
		switch v := v.(type) {
		case nil:
			continue
		case string:
			result[k] = v
		case json.Number:
			result[k] = v.String()
		case bool:
			result[k] = strconv.FormatBool(v)
		default:
			result[k] = fmt.Sprint(v)
		}
	}
	return result
}

func metadata(el rawElement) *osm.Metadata {
	if el.Timestamp == "" && el.Version == 0 && el.Changeset == 0 && el.User == "" {
		return nil
	}
	md := &osm.Metadata{
		UserID:    el.UID,
		UserName:  el.User,
		Version:   el.Version,
		Changeset: el.Changeset,
	}
	if el.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, el.Timestamp); err == nil {
			md.Timestamp = ts
		}
	}
	return md
}
