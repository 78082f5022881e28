// Package s3 is a treestate.HierarchyProvider over an S3 bucket, listing
// one "folder level" at a time via ListObjectsV2 with a "/" delimiter,
// wrapping every SDK call boundary with github.com/pkg/errors and retrying
// transient SDK errors through a failsafe-go retry policy.
package s3

import (
	"context"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awsS3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	pkgerrors "github.com/pkg/errors"

	"github.com/lattice-tree/treestate"
)

const delimiter = "/"

// KeyContains is the only FilterRule this provider understands: an
// InstanceFilter carrying one keeps only entries whose key suffix contains
// Substr.
type KeyContains struct {
	Substr string
}

// Option configures a Provider at construction time.
type Option func(*Provider)

// WithRetry overrides the default retry policy (3 attempts, 200ms delay)
// used against transient SDK errors.
func WithRetry(maxAttempts int, delay time.Duration) Option {
	return func(p *Provider) {
		p.retryMaxAttempts = maxAttempts
		p.retryDelay = delay
	}
}

// Provider lists objects under bucket/rootPrefix as hierarchy nodes.
type Provider struct {
	client *awsS3.Client
	bucket string
	root   string

	retryMaxAttempts int
	retryDelay       time.Duration

	mu        sync.Mutex
	formatter treestate.FormatterFunc
	listeners map[int]func(treestate.HierarchyChangeEvent)
	nextLID   int
}

// NewProvider loads the default AWS configuration and returns a provider
// rooted at bucket/prefix. prefix may be empty for the bucket root.
func NewProvider(ctx context.Context, bucket, prefix string, opts ...Option) (*Provider, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "s3: load aws config")
	}
	p := &Provider{
		client:           awsS3.NewFromConfig(cfg),
		bucket:           bucket,
		root:             normalizePrefix(prefix),
		retryMaxAttempts: 3,
		retryDelay:       200 * time.Millisecond,
		listeners:        make(map[int]func(treestate.HierarchyChangeEvent)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func normalizePrefix(prefix string) string {
	if prefix == "" {
		return ""
	}
	return strings.TrimSuffix(prefix, delimiter) + delimiter
}

func (p *Provider) retryPolicy() retrypolicy.RetryPolicy[*awsS3.ListObjectsV2Output] {
	return retrypolicy.NewBuilder[*awsS3.ListObjectsV2Output]().
		WithMaxRetries(max(p.retryMaxAttempts-1, 0)).
		WithDelay(p.retryDelay).
		HandleIf(isRetryableError).
		Build()
}

func isRetryableError(_ *awsS3.ListObjectsV2Output, err error) bool {
	if err == nil {
		return false
	}
	var ae smithy.APIError
	if pkgerrors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "InternalError", "OperationAborted", "RequestTimeout", "ServiceUnavailable", "SlowDown":
			return true
		}
	}
	return false
}

func (p *Provider) listObjects(ctx context.Context, prefix string, limit treestate.SizeLimit) (*awsS3.ListObjectsV2Output, error) {
	in := &awsS3.ListObjectsV2Input{
		Bucket:    aws.String(p.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String(delimiter),
	}
	if n, ok := limit.Value(); ok {
		in.MaxKeys = aws.Int32(int32(n))
	}
	out, err := failsafe.Get(func() (*awsS3.ListObjectsV2Output, error) {
		return p.client.ListObjectsV2(ctx, in)
	}, p.retryPolicy())
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "s3: list objects s3://%s/%s", p.bucket, prefix)
	}
	return out, nil
}

func (p *Provider) toFolderNode(parentKeys []treestate.NodeKey, prefix string) treestate.HierarchyNode {
	return p.format(treestate.HierarchyNode{
		Key:               treestate.GenericKey{Value: prefix},
		ParentKeys:        parentKeys,
		Label:             folderLabel(prefix),
		HasChildren:       true,
		SupportsFiltering: true,
		ExtendedData:      map[string]any{"key": prefix, "isFolder": true},
	})
}

func (p *Provider) toObjectNode(parentKeys []treestate.NodeKey, obj types.Object) treestate.HierarchyNode {
	key := aws.ToString(obj.Key)
	return p.format(treestate.HierarchyNode{
		Key:          treestate.GenericKey{Value: key},
		ParentKeys:   parentKeys,
		Label:        folderLabel(key),
		HasChildren:  false,
		ExtendedData: map[string]any{"key": key, "size": obj.Size, "isFolder": false},
	})
}

func (p *Provider) format(hn treestate.HierarchyNode) treestate.HierarchyNode {
	p.mu.Lock()
	formatter := p.formatter
	p.mu.Unlock()
	if formatter != nil {
		hn.Label = formatter(hn)
	}
	return hn
}

func folderLabel(key string) string {
	trimmed := strings.TrimSuffix(key, delimiter)
	if i := strings.LastIndex(trimmed, delimiter); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

func (p *Provider) prefixFilter(f *treestate.InstanceFilter) string {
	if f == nil {
		return ""
	}
	rule, ok := f.Rule.(KeyContains)
	if !ok {
		return ""
	}
	return rule.Substr
}

// GetNodes implements treestate.HierarchyProvider.
func (p *Provider) GetNodes(ctx context.Context, req treestate.GetNodesRequest) iter.Seq2[treestate.HierarchyNode, error] {
	return func(yield func(treestate.HierarchyNode, error) bool) {
		prefix := p.root
		var parentKeys []treestate.NodeKey
		if req.ParentNode != nil {
			key, ok := req.ParentNode.Key.(treestate.GenericKey)
			if !ok {
				return
			}
			prefix = key.Value
			parentKeys = append(append([]treestate.NodeKey(nil), req.ParentNode.ParentKeys...), req.ParentNode.Key)
		}

		out, err := p.listObjects(ctx, prefix, req.HierarchyLevelSizeLimit)
		if err != nil {
			yield(treestate.HierarchyNode{}, err)
			return
		}

		needle := strings.ToLower(p.prefixFilter(req.InstanceFilter))

		if aws.ToBool(out.IsTruncated) {
			yield(treestate.HierarchyNode{}, &treestate.RowsLimitExceededError{Limit: req.HierarchyLevelSizeLimit})
			return
		}

		for _, cp := range out.CommonPrefixes {
			if err := ctx.Err(); err != nil {
				yield(treestate.HierarchyNode{}, err)
				return
			}
			folder := aws.ToString(cp.Prefix)
			if needle != "" && !strings.Contains(strings.ToLower(folderLabel(folder)), needle) {
				continue
			}
			if !yield(p.toFolderNode(parentKeys, folder), nil) {
				return
			}
		}
		for _, obj := range out.Contents {
			if err := ctx.Err(); err != nil {
				yield(treestate.HierarchyNode{}, err)
				return
			}
			if aws.ToString(obj.Key) == prefix {
				continue
			}
			if needle != "" && !strings.Contains(strings.ToLower(folderLabel(aws.ToString(obj.Key))), needle) {
				continue
			}
			if !yield(p.toObjectNode(parentKeys, obj), nil) {
				return
			}
		}
	}
}

// GetNodeInstanceKeys implements treestate.HierarchyProvider.
func (p *Provider) GetNodeInstanceKeys(ctx context.Context, req treestate.GetNodeInstanceKeysRequest) iter.Seq2[treestate.InstanceKey, error] {
	return func(yield func(treestate.InstanceKey, error) bool) {
		prefix := p.root
		if req.ParentNode != nil {
			if key, ok := req.ParentNode.Key.(treestate.GenericKey); ok {
				prefix = key.Value
			}
		}
		out, err := p.listObjects(ctx, prefix, req.HierarchyLevelSizeLimit)
		if err != nil {
			yield(treestate.InstanceKey{}, err)
			return
		}
		for _, cp := range out.CommonPrefixes {
			if err := ctx.Err(); err != nil {
				yield(treestate.InstanceKey{}, err)
				return
			}
			if !yield(treestate.InstanceKey{ClassName: "s3.Folder", ID: aws.ToString(cp.Prefix)}, nil) {
				return
			}
		}
		for _, obj := range out.Contents {
			if err := ctx.Err(); err != nil {
				yield(treestate.InstanceKey{}, err)
				return
			}
			if !yield(treestate.InstanceKey{ClassName: "s3.Object", ID: aws.ToString(obj.Key)}, nil) {
				return
			}
		}
	}
}

// SetFormatter implements treestate.HierarchyProvider.
func (p *Provider) SetFormatter(fn treestate.FormatterFunc) {
	p.mu.Lock()
	p.formatter = fn
	listeners := p.snapshotListeners()
	p.mu.Unlock()
	p.notify(listeners, treestate.HierarchyChangeEvent{FormatterChange: &treestate.FormatterChange{}})
}

// SetHierarchyFilter implements treestate.HierarchyProvider.
func (p *Provider) SetHierarchyFilter(paths []treestate.NodePath) {
	p.mu.Lock()
	listeners := p.snapshotListeners()
	p.mu.Unlock()
	p.notify(listeners, treestate.HierarchyChangeEvent{FilterChange: &treestate.FilterChange{NewFilter: paths}})
}

// OnHierarchyChanged implements treestate.HierarchyProvider.
func (p *Provider) OnHierarchyChanged(fn func(treestate.HierarchyChangeEvent)) func() {
	p.mu.Lock()
	id := p.nextLID
	p.nextLID++
	p.listeners[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

func (p *Provider) snapshotListeners() []func(treestate.HierarchyChangeEvent) {
	out := make([]func(treestate.HierarchyChangeEvent), 0, len(p.listeners))
	for _, fn := range p.listeners {
		out = append(out, fn)
	}
	return out
}

func (p *Provider) notify(listeners []func(treestate.HierarchyChangeEvent), ev treestate.HierarchyChangeEvent) {
	for _, fn := range listeners {
		fn(ev)
	}
}

// Dispose implements treestate.HierarchyProvider.
func (p *Provider) Dispose() {
	p.mu.Lock()
	p.listeners = make(map[int]func(treestate.HierarchyChangeEvent))
	p.mu.Unlock()
}
