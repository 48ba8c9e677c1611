package reporting

import (
	"context"
	"maps"
)

type tagsContextKey struct{}

func tagsFromContext(ctx context.Context) map[string]string {
	tags, ok := ctx.Value(tagsContextKey{}).(map[string]string)
	if !ok {
		return map[string]string{}
	}
	return maps.Clone(tags)
}

// AddTagsToContext attaches tags to every report made with the returned context.
func AddTagsToContext(ctx context.Context, tags map[string]string) context.Context {
	merged := tagsFromContext(ctx)
	maps.Copy(merged, tags)
	return context.WithValue(ctx, tagsContextKey{}, merged)
}
