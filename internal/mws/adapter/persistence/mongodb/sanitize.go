package mongodb

import (
	"mws-server/internal/mws/namespace"
	apperrors "mws-server/internal/shared/errors"

	"go.mongodb.org/mongo-driver/bson"
)

// forbiddenOperators are query operators that execute caller-supplied code
// on the server. Tenant queries must never carry them.
var forbiddenOperators = map[string]struct{}{
	"$where":       {},
	"$function":    {},
	"$accumulator": {},
}

// sanitizeQuery rejects queries carrying server-side-execution operators at
// any nesting depth and normalizes a nil query to an empty filter.
func sanitizeQuery(query bson.M) (bson.M, error) {
	if query == nil {
		return bson.M{}, nil
	}
	if op := findForbiddenOperator(query); op != "" {
		return nil, apperrors.NewBadRequest("query operator is not allowed").WithDetail(op)
	}
	return query, nil
}

// sanitizePipeline rejects forbidden operators in aggregation stages and
// translates every collection reference a stage carries ($lookup.from,
// $graphLookup.from, $unionWith, $merge, $out) into the tenant's namespace,
// so a pipeline can never read or write another tenant's collections.
func sanitizePipeline(tr *namespace.Translator, pipeline []bson.M) ([]bson.M, error) {
	out := make([]bson.M, 0, len(pipeline))
	for _, stage := range pipeline {
		if op := findForbiddenOperator(stage); op != "" {
			return nil, apperrors.NewBadRequest("query operator is not allowed").WithDetail(op)
		}
		rewritten, err := rewriteStage(tr, stage)
		if err != nil {
			return nil, err
		}
		out = append(out, rewritten)
	}
	return out, nil
}

func rewriteStage(tr *namespace.Translator, stage bson.M) (bson.M, error) {
	out := make(bson.M, len(stage))
	for name, spec := range stage {
		rewritten, err := rewriteStageSpec(tr, name, spec)
		if err != nil {
			return nil, err
		}
		out[name] = rewritten
	}
	return out, nil
}

func rewriteStageSpec(tr *namespace.Translator, name string, spec interface{}) (interface{}, error) {
	switch name {
	case "$out", "$merge", "$unionWith":
		if logical, ok := spec.(string); ok {
			return tr.ToPhysical(logical)
		}
		doc, ok := asMap(spec)
		if !ok {
			return nil, apperrors.NewBadRequest(name + " must name a collection in the current database")
		}
		return rewriteTargetDoc(tr, name, doc)
	case "$lookup", "$graphLookup":
		doc, ok := asMap(spec)
		if !ok {
			return nil, apperrors.NewBadRequest(name + " requires a document argument")
		}
		return rewriteTargetDoc(tr, name, doc)
	case "$facet":
		doc, ok := asMap(spec)
		if !ok {
			return nil, apperrors.NewBadRequest("$facet requires a document argument")
		}
		out := make(bson.M, len(doc))
		for field, sub := range doc {
			rewritten, err := rewriteSubPipeline(tr, sub)
			if err != nil {
				return nil, err
			}
			out[field] = rewritten
		}
		return out, nil
	default:
		return spec, nil
	}
}

// rewriteTargetDoc translates the collection reference fields of a stage
// document and recurses into an inner pipeline when one is present. A db
// field would address another database outright and is always rejected.
func rewriteTargetDoc(tr *namespace.Translator, name string, doc map[string]interface{}) (bson.M, error) {
	out := make(bson.M, len(doc))
	for k, v := range doc {
		out[k] = v
	}

	if _, present := out["db"]; present {
		return nil, apperrors.NewBadRequest(name + " may only reference collections in the current database")
	}
	for _, field := range []string{"from", "coll", "into"} {
		ref, present := out[field]
		if !present {
			continue
		}
		logical, ok := ref.(string)
		if !ok {
			return nil, apperrors.NewBadRequest(name + " may only reference collections in the current database")
		}
		physical, err := tr.ToPhysical(logical)
		if err != nil {
			return nil, err
		}
		out[field] = physical
	}

	if sub, present := out["pipeline"]; present {
		rewritten, err := rewriteSubPipeline(tr, sub)
		if err != nil {
			return nil, err
		}
		out["pipeline"] = rewritten
	}
	return out, nil
}

func rewriteSubPipeline(tr *namespace.Translator, value interface{}) ([]interface{}, error) {
	stages, ok := asSlice(value)
	if !ok {
		return nil, apperrors.NewBadRequest("aggregation pipeline must be a list of stages")
	}
	out := make([]interface{}, 0, len(stages))
	for _, raw := range stages {
		stage, ok := asMap(raw)
		if !ok {
			return nil, apperrors.NewBadRequest("aggregation pipeline must be a list of stages")
		}
		rewritten, err := rewriteStage(tr, bson.M(stage))
		if err != nil {
			return nil, err
		}
		out = append(out, rewritten)
	}
	return out, nil
}

func asMap(value interface{}) (map[string]interface{}, bool) {
	switch v := value.(type) {
	case bson.M:
		return v, true
	case map[string]interface{}:
		return v, true
	}
	return nil, false
}

func asSlice(value interface{}) ([]interface{}, bool) {
	switch v := value.(type) {
	case bson.A:
		return v, true
	case []interface{}:
		return v, true
	}
	return nil, false
}

func findForbiddenOperator(value interface{}) string {
	switch v := value.(type) {
	case bson.M:
		for key, inner := range v {
			if _, bad := forbiddenOperators[key]; bad {
				return key
			}
			if op := findForbiddenOperator(inner); op != "" {
				return op
			}
		}
	case map[string]interface{}:
		for key, inner := range v {
			if _, bad := forbiddenOperators[key]; bad {
				return key
			}
			if op := findForbiddenOperator(inner); op != "" {
				return op
			}
		}
	case bson.A:
		for _, inner := range v {
			if op := findForbiddenOperator(inner); op != "" {
				return op
			}
		}
	case []interface{}:
		for _, inner := range v {
			if op := findForbiddenOperator(inner); op != "" {
				return op
			}
		}
	}
	return ""
}
