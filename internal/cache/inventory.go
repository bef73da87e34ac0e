package cache

import (
	"context"
	"fmt"
	"time"
)

const PostKeyPrefix = "post:%d"

const PostTTL = 10 * time.Minute

func PostKey(postID uint) string {
	return fmt.Sprintf(PostKeyPrefix, postID)
}

func InvalidatePost(ctx context.Context, postID uint) {
	Invalidate(ctx, PostKey(postID))
}
