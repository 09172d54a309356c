// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Catalog maps relation names to relations.
type Catalog struct {
	mu   sync.RWMutex
	rels map[string]Relation
}

func NewCatalog() *Catalog {
	return &Catalog{rels: make(map[string]Relation)}
}

func (cat *Catalog) Register(rel Relation) error {
	cat.mu.Lock()
	defer cat.mu.Unlock()
	if _, has := cat.rels[rel.Name()]; has {
		return errors.Wrapf(ErrRelationExists, "%s", rel.Name())
	}
	cat.rels[rel.Name()] = rel
	return nil
}

func (cat *Catalog) Lookup(name string) (Relation, error) {
	cat.mu.RLock()
	defer cat.mu.RUnlock()
	rel, has := cat.rels[name]
	if !has {
		return nil, errors.Wrapf(ErrRelationNotFound, "%s", name)
	}
	return rel, nil
}

// Names lists the relations in name order.
func (cat *Catalog) Names() []string {
	cat.mu.RLock()
	defer cat.mu.RUnlock()
	ret := make([]string, 0, len(cat.rels))
	for name := range cat.rels {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}
