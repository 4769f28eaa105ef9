package mongodb

import (
	"testing"

	"mws-server/internal/mws/namespace"
	apperrors "mws-server/internal/shared/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestSanitizeQueryNormalizesNil(t *testing.T) {
	query, err := sanitizeQuery(nil)
	require.NoError(t, err)
	assert.Equal(t, bson.M{}, query)
}

func TestSanitizeQueryPassesOrdinaryQueries(t *testing.T) {
	queries := []bson.M{
		{},
		{"name": "alice"},
		{"age": bson.M{"$gt": 21}},
		{"$or": bson.A{bson.M{"a": 1}, bson.M{"b": 2}}},
		{"tags": bson.M{"$in": []interface{}{"x", "y"}}},
	}
	for _, q := range queries {
		got, err := sanitizeQuery(q)
		require.NoError(t, err)
		assert.Equal(t, q, got)
	}
}

func TestSanitizeQueryRejectsForbiddenOperators(t *testing.T) {
	tests := []struct {
		name  string
		query bson.M
		op    string
	}{
		{"top-level where", bson.M{"$where": "this.a == 1"}, "$where"},
		{"nested where", bson.M{"a": bson.M{"$where": "true"}}, "$where"},
		{"where inside or", bson.M{"$or": bson.A{bson.M{"$where": "1"}}}, "$where"},
		{"function", bson.M{"f": bson.M{"$function": bson.M{"body": "x"}}}, "$function"},
		{"accumulator", bson.M{"g": bson.M{"$accumulator": bson.M{}}}, "$accumulator"},
		{"deeply nested", bson.M{"a": bson.M{"b": []interface{}{map[string]interface{}{"$where": "1"}}}}, "$where"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sanitizeQuery(tt.query)
			require.Error(t, err)

			mwsErr := apperrors.AsMWSError(err)
			assert.Equal(t, apperrors.KindBadRequest, mwsErr.Kind)
			assert.Equal(t, tt.op, mwsErr.Detail)
		})
	}
}

func TestSanitizeQueryAllowsOperatorNamesAsValues(t *testing.T) {
	// Only keys invoke operators; values are plain data.
	got, err := sanitizeQuery(bson.M{"note": "$where"})
	require.NoError(t, err)
	assert.Equal(t, bson.M{"note": "$where"}, got)
}

func TestSanitizePipelinePassesOrdinaryStages(t *testing.T) {
	tr := namespace.NewTranslator("res1")
	pipeline := []bson.M{
		{"$match": bson.M{"age": bson.M{"$gt": 21}}},
		{"$group": bson.M{"_id": "$city", "n": bson.M{"$sum": 1}}},
		{"$sort": bson.M{"n": -1}},
	}

	got, err := sanitizePipeline(tr, pipeline)
	require.NoError(t, err)
	assert.Equal(t, pipeline, got)
}

func TestSanitizePipelineRejectsForbiddenOperators(t *testing.T) {
	tr := namespace.NewTranslator("res1")
	pipelines := [][]bson.M{
		{{"$match": bson.M{"$where": "true"}}},
		{{"$group": bson.M{"_id": nil, "v": bson.M{"$accumulator": bson.M{}}}}},
		{{"$addFields": bson.M{"v": bson.M{"$function": bson.M{"body": "x"}}}}},
	}
	for _, pipeline := range pipelines {
		_, err := sanitizePipeline(tr, pipeline)
		require.Error(t, err)
		assert.Equal(t, apperrors.KindBadRequest, apperrors.AsMWSError(err).Kind)
	}
}

func TestSanitizePipelineTranslatesCollectionReferences(t *testing.T) {
	tr := namespace.NewTranslator("res1")

	got, err := sanitizePipeline(tr, []bson.M{
		{"$lookup": bson.M{"from": "orders", "localField": "a", "foreignField": "b", "as": "o"}},
		{"$graphLookup": bson.M{"from": "edges", "startWith": "$x", "as": "g"}},
		{"$unionWith": "archive"},
		{"$unionWith": bson.M{"coll": "extra"}},
		{"$merge": "summary"},
		{"$out": "report"},
	})
	require.NoError(t, err)

	assert.Equal(t, "res1orders", got[0]["$lookup"].(bson.M)["from"])
	assert.Equal(t, "res1edges", got[1]["$graphLookup"].(bson.M)["from"])
	assert.Equal(t, "res1archive", got[2]["$unionWith"])
	assert.Equal(t, "res1extra", got[3]["$unionWith"].(bson.M)["coll"])
	assert.Equal(t, "res1summary", got[4]["$merge"])
	assert.Equal(t, "res1report", got[5]["$out"])
}

func TestSanitizePipelineCannotEscapeTenantNamespace(t *testing.T) {
	tr := namespace.NewTranslator("res1")

	// A name carrying another tenant's prefix still lands inside this
	// tenant's namespace after translation.
	got, err := sanitizePipeline(tr, []bson.M{
		{"$lookup": bson.M{"from": "res2items", "as": "stolen"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "res1res2items", got[0]["$lookup"].(bson.M)["from"])
}

func TestSanitizePipelineRejectsReservedTargets(t *testing.T) {
	tr := namespace.NewTranslator("res1")

	_, err := sanitizePipeline(tr, []bson.M{{"$lookup": bson.M{"from": "system.users"}}})
	assert.True(t, apperrors.IsForbidden(err))

	_, err = sanitizePipeline(tr, []bson.M{{"$out": "admin.secrets"}})
	assert.True(t, apperrors.IsForbidden(err))
}

func TestSanitizePipelineRejectsCrossDatabaseTargets(t *testing.T) {
	tr := namespace.NewTranslator("res1")

	cases := [][]bson.M{
		{{"$out": bson.M{"db": "other", "coll": "items"}}},
		{{"$merge": bson.M{"into": bson.M{"db": "other", "coll": "items"}}}},
		{{"$lookup": bson.M{"from": 7}}},
	}
	for _, pipeline := range cases {
		_, err := sanitizePipeline(tr, pipeline)
		require.Error(t, err)
		assert.Equal(t, apperrors.KindBadRequest, apperrors.AsMWSError(err).Kind)
	}
}

func TestSanitizePipelineWalksNestedPipelines(t *testing.T) {
	tr := namespace.NewTranslator("res1")

	got, err := sanitizePipeline(tr, []bson.M{
		{"$lookup": bson.M{
			"from": "orders",
			"pipeline": []interface{}{
				map[string]interface{}{"$lookup": map[string]interface{}{"from": "lines", "as": "l"}},
			},
			"as": "o",
		}},
		{"$facet": bson.M{
			"side": []interface{}{
				map[string]interface{}{"$unionWith": "extra"},
			},
		}},
	})
	require.NoError(t, err)

	inner := got[0]["$lookup"].(bson.M)["pipeline"].([]interface{})[0].(bson.M)
	assert.Equal(t, "res1lines", inner["$lookup"].(bson.M)["from"])

	facet := got[1]["$facet"].(bson.M)["side"].([]interface{})[0].(bson.M)
	assert.Equal(t, "res1extra", facet["$unionWith"])

	_, err = sanitizePipeline(tr, []bson.M{
		{"$lookup": bson.M{
			"from": "orders",
			"pipeline": []interface{}{
				map[string]interface{}{"$match": map[string]interface{}{"$where": "1"}},
			},
		}},
	})
	require.Error(t, err)
}
