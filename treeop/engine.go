// Package treeop implements bounded recursive filesystem operations over an
// owner's sandbox: copy, move, delete and zip export. Every traversal runs
// off an explicit work stack with depth/file/time budgets checked at a single
// chokepoint, so an oversized or malicious tree stops the operation instead
// of exhausting the process.
package treeop

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"cabinet/pathguard"
	"cabinet/tool"
	"cabinet/types"
)

// Clamps are the server-side ceilings. Client-supplied limits may only lower
// them, never raise them.
type Clamps struct {
	MaxDepth      int
	MaxFiles      int
	MaxDuration   time.Duration
	MaxZipEntries int
}

type Engine struct {
	clamps  Clamps
	rootFor func(owner string) string
	sink    types.EventSink
	cache   types.ListingInvalidator
}

func New(clamps Clamps, rootFor func(owner string) string, sink types.EventSink, cache types.ListingInvalidator) *Engine {
	return &Engine{
		clamps:  clamps,
		rootFor: rootFor,
		sink:    sink,
		cache:   cache,
	}
}

// budget tracks one operation's remaining allowance. stop() latches the first
// reason; once latched every traversal loop drains immediately.
type budget struct {
	deadline time.Time
	maxDepth int
	maxFiles int
	files    int
	reason   string
}

func (e *Engine) newBudget(lim *types.TreeOpLimits) *budget {
	b := &budget{
		deadline: time.Now().Add(e.clamps.MaxDuration),
		maxDepth: e.clamps.MaxDepth,
		maxFiles: e.clamps.MaxFiles,
	}
	if lim == nil {
		return b
	}
	if lim.MaxDepth > 0 && lim.MaxDepth < b.maxDepth {
		b.maxDepth = lim.MaxDepth
	}
	if lim.MaxFiles > 0 && lim.MaxFiles < b.maxFiles {
		b.maxFiles = lim.MaxFiles
	}
	if lim.TimeoutMs > 0 {
		d := time.Duration(lim.TimeoutMs) * time.Millisecond
		if d < e.clamps.MaxDuration {
			b.deadline = time.Now().Add(d)
		}
	}
	return b
}

func (b *budget) stop(reason string) {
	if b.reason == "" {
		b.reason = reason
	}
}

// ok is the single budget chokepoint, called once per work-stack item.
func (b *budget) ok(ctx context.Context) bool {
	if b.reason != "" {
		return false
	}
	if ctx.Err() != nil {
		b.stop("cancelled")
		return false
	}
	if time.Now().After(b.deadline) {
		b.stop("time budget exceeded")
		return false
	}
	return true
}

func (b *budget) spendFile() bool {
	b.files++
	if b.files > b.maxFiles {
		b.stop(fmt.Sprintf("file budget exceeded (%d)", b.maxFiles))
		return false
	}
	return true
}

// Copy duplicates each source into the destination folder. A destination that
// sits inside a source tree is redirected to a "<name> (copy)" sibling inside
// it instead of recursing forever; the original contents are untouched.
func (e *Engine) Copy(ctx context.Context, owner string, paths []string, destination string, lim *types.TreeOpLimits) (types.CopyResponse, error) {
	root := e.rootFor(owner)
	resp := types.CopyResponse{Copied: []types.MovedEntry{}, Warnings: []string{}}

	destDir, err := pathguard.Resolve(root, destination)
	if err != nil {
		return resp, err
	}
	if fi, statErr := os.Stat(destDir.Abs); statErr != nil || !fi.IsDir() {
		return resp, types.ErrNotFound
	}

	b := e.newBudget(lim)
	for _, p := range paths {
		if !b.ok(ctx) {
			resp.Warnings = append(resp.Warnings, "stopped: "+b.reason)
			break
		}
		src, rerr := pathguard.Resolve(root, p)
		if rerr != nil {
			resp.Warnings = append(resp.Warnings, fmt.Sprintf("%s: invalid path", p))
			continue
		}
		if src.Rel == "" {
			resp.Warnings = append(resp.Warnings, "cannot copy the sandbox root")
			continue
		}
		if _, statErr := os.Lstat(src.Abs); statErr != nil {
			resp.Warnings = append(resp.Warnings, fmt.Sprintf("%s: not found", src.Rel))
			continue
		}

		name := path.Base(src.Rel)
		var dstAbs string
		if isSelfOrDescendant(src.Abs, destDir.Abs) {
			dstAbs = tool.NextCopyName(destDir.Abs, name)
			tool.DefaultLogger.Infof("[Copy] Destination %q nests inside source %q; using %q", destDir.Rel, src.Rel, filepath.Base(dstAbs))
		} else {
			dstAbs = tool.NextAvailablePath(destDir.Abs, name)
		}

		e.copyTree(ctx, src.Abs, dstAbs, b, &resp.Warnings)

		dstRel := pathguard.CleanRel(path.Join(destDir.Rel, filepath.Base(dstAbs)))
		if _, statErr := os.Lstat(dstAbs); statErr != nil {
			// Nothing landed at the destination (symlink source, failed root
			// copy). Success accounting and change events only cover paths
			// that actually exist.
			resp.Warnings = append(resp.Warnings, fmt.Sprintf("%s: nothing copied to %s", src.Rel, dstRel))
			continue
		}
		if b.reason != "" {
			resp.Warnings = append(resp.Warnings, fmt.Sprintf("%s: partially copied to %s", src.Rel, dstRel))
		} else {
			resp.Copied = append(resp.Copied, types.MovedEntry{From: src.Rel, To: dstRel})
		}
		e.afterMutation(owner, types.ChangeCreated, dstRel)
	}
	return resp, nil
}

// isSelfOrDescendant reports whether candidate equals base or lives under it.
func isSelfOrDescendant(base, candidate string) bool {
	rel, err := filepath.Rel(base, candidate)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !filepath.IsAbs(rel) && !isParentRel(rel))
}

func isParentRel(rel string) bool {
	return rel == ".." || len(rel) > 2 && rel[:3] == ".."+string(filepath.Separator)
}

type copyItem struct {
	src   string
	dst   string
	depth int
}

// copyTree walks src with an explicit stack. Symbolic links are skipped with
// a warning (never followed), directories already enqueued are not revisited,
// and nothing ever descends into dstRoot itself, which is the in-progress
// copy when the destination nests inside the source.
func (e *Engine) copyTree(ctx context.Context, srcRoot, dstRoot string, b *budget, warnings *[]string) {
	stack := []copyItem{{src: srcRoot, dst: dstRoot, depth: 0}}
	visited := make(map[string]struct{})

	for len(stack) > 0 {
		if !b.ok(ctx) {
			*warnings = append(*warnings, "stopped: "+b.reason)
			return
		}
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		fi, err := os.Lstat(item.src)
		if err != nil {
			*warnings = append(*warnings, fmt.Sprintf("%s: %v", filepath.Base(item.src), err))
			continue
		}
		if fi.Mode()&os.ModeSymlink != 0 {
			*warnings = append(*warnings, fmt.Sprintf("%s: symlink skipped", filepath.Base(item.src)))
			continue
		}
		if !fi.IsDir() {
			if !b.spendFile() {
				*warnings = append(*warnings, "stopped: "+b.reason)
				return
			}
			if cerr := copyFile(ctx, item.src, item.dst, fi); cerr != nil {
				*warnings = append(*warnings, fmt.Sprintf("%s: %v", filepath.Base(item.src), cerr))
			}
			continue
		}

		if _, seen := visited[item.src]; seen {
			continue
		}
		visited[item.src] = struct{}{}
		if item.depth >= b.maxDepth {
			b.stop(fmt.Sprintf("depth budget exceeded (%d)", b.maxDepth))
			*warnings = append(*warnings, "stopped: "+b.reason)
			return
		}
		if err := os.MkdirAll(item.dst, 0o755); err != nil {
			*warnings = append(*warnings, fmt.Sprintf("%s: %v", filepath.Base(item.dst), err))
			continue
		}
		entries, err := os.ReadDir(item.src)
		if err != nil {
			*warnings = append(*warnings, fmt.Sprintf("%s: %v", filepath.Base(item.src), err))
			continue
		}
		for _, entry := range entries {
			childSrc := filepath.Join(item.src, entry.Name())
			if childSrc == dstRoot {
				continue
			}
			stack = append(stack, copyItem{
				src:   childSrc,
				dst:   filepath.Join(item.dst, entry.Name()),
				depth: item.depth + 1,
			})
		}
	}
}

func copyFile(ctx context.Context, src, dst string, fi os.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fi.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := tool.CopyWithContext(ctx, out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Move renames each source into the destination folder. A destination inside
// the source tree cannot be renamed into and is skipped with a warning. One
// deleted and one created event fire per item, never per file.
func (e *Engine) Move(ctx context.Context, owner string, paths []string, destination string, lim *types.TreeOpLimits) (types.MoveResponse, error) {
	root := e.rootFor(owner)
	resp := types.MoveResponse{Moved: []types.MovedEntry{}, Warnings: []string{}}

	destDir, err := pathguard.Resolve(root, destination)
	if err != nil {
		return resp, err
	}
	if fi, statErr := os.Stat(destDir.Abs); statErr != nil || !fi.IsDir() {
		return resp, types.ErrNotFound
	}

	b := e.newBudget(lim)
	for _, p := range paths {
		if !b.ok(ctx) {
			resp.Warnings = append(resp.Warnings, "stopped: "+b.reason)
			break
		}
		src, rerr := pathguard.Resolve(root, p)
		if rerr != nil {
			resp.Warnings = append(resp.Warnings, fmt.Sprintf("%s: invalid path", p))
			continue
		}
		if src.Rel == "" {
			resp.Warnings = append(resp.Warnings, "cannot move the sandbox root")
			continue
		}
		if _, statErr := os.Lstat(src.Abs); statErr != nil {
			resp.Warnings = append(resp.Warnings, fmt.Sprintf("%s: not found", src.Rel))
			continue
		}
		if isSelfOrDescendant(src.Abs, destDir.Abs) {
			resp.Warnings = append(resp.Warnings, fmt.Sprintf("%s: cannot move into itself", src.Rel))
			continue
		}

		dstAbs := tool.NextAvailablePath(destDir.Abs, path.Base(src.Rel))
		if err := os.Rename(src.Abs, dstAbs); err != nil {
			resp.Warnings = append(resp.Warnings, fmt.Sprintf("%s: %v", src.Rel, err))
			continue
		}

		dstRel := pathguard.CleanRel(path.Join(destDir.Rel, filepath.Base(dstAbs)))
		resp.Moved = append(resp.Moved, types.MovedEntry{From: src.Rel, To: dstRel})
		e.afterMutation(owner, types.ChangeDeleted, src.Rel)
		e.afterMutation(owner, types.ChangeCreated, dstRel)
	}
	return resp, nil
}

// Delete removes each path, repairing permissions best-effort first so stale
// modes from clients do not block a user-initiated delete. One failed child
// never aborts the batch; whatever could be removed is removed.
func (e *Engine) Delete(ctx context.Context, owner string, paths []string) (types.DeleteResponse, error) {
	root := e.rootFor(owner)
	resp := types.DeleteResponse{Deleted: []string{}, Errors: []string{}}
	b := e.newBudget(nil)

	for _, p := range paths {
		if !b.ok(ctx) {
			resp.Errors = append(resp.Errors, "stopped: "+b.reason)
			break
		}
		src, rerr := pathguard.Resolve(root, p)
		if rerr != nil {
			resp.Errors = append(resp.Errors, fmt.Sprintf("%s: invalid path", p))
			continue
		}
		if src.Rel == "" {
			resp.Errors = append(resp.Errors, "cannot delete the sandbox root")
			continue
		}
		if _, statErr := os.Lstat(src.Abs); statErr != nil {
			resp.Errors = append(resp.Errors, fmt.Sprintf("%s: not found", src.Rel))
			continue
		}

		e.removeTree(ctx, src.Abs, b, &resp.Errors)
		if _, statErr := os.Lstat(src.Abs); statErr == nil {
			resp.Errors = append(resp.Errors, fmt.Sprintf("%s: not fully removed", src.Rel))
			continue
		}
		resp.Deleted = append(resp.Deleted, src.Rel)
		e.afterMutation(owner, types.ChangeDeleted, src.Rel)
	}
	return resp, nil
}

type rmItem struct {
	path     string
	expanded bool
}

// removeTree deletes depth-first off an explicit stack: a directory is pushed
// back as expanded, its children removed first, then the directory itself.
// Errors are recorded and traversal continues with the next item.
func (e *Engine) removeTree(ctx context.Context, rootAbs string, b *budget, errs *[]string) {
	stack := []rmItem{{path: rootAbs}}

	for len(stack) > 0 {
		if !b.ok(ctx) {
			*errs = append(*errs, "stopped: "+b.reason)
			return
		}
		top := &stack[len(stack)-1]

		fi, err := os.Lstat(top.path)
		if err != nil {
			stack = stack[:len(stack)-1]
			if !os.IsNotExist(err) {
				*errs = append(*errs, fmt.Sprintf("%s: %v", filepath.Base(top.path), err))
			}
			continue
		}

		if fi.IsDir() && fi.Mode()&os.ModeSymlink == 0 && !top.expanded {
			top.expanded = true
			// Loosen the mode first; a read-only directory cannot list or
			// drop its children.
			_ = os.Chmod(top.path, 0o700)
			entries, rerr := os.ReadDir(top.path)
			if rerr != nil {
				*errs = append(*errs, fmt.Sprintf("%s: %v", filepath.Base(top.path), rerr))
				continue
			}
			for _, entry := range entries {
				stack = append(stack, rmItem{path: filepath.Join(top.path, entry.Name())})
			}
			continue
		}

		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fi.IsDir() {
			if !b.spendFile() {
				*errs = append(*errs, "stopped: "+b.reason)
				return
			}
			_ = os.Chmod(item.path, 0o600)
		}
		if rmErr := os.Remove(item.path); rmErr != nil {
			*errs = append(*errs, fmt.Sprintf("%s: %v", filepath.Base(item.path), rmErr))
		}
	}
}

// afterMutation runs the best-effort cache/event side effects of one logical
// change. Failures here are logged by the collaborators and never surface.
func (e *Engine) afterMutation(owner, changeType, rel string) {
	if e.cache != nil {
		e.cache.Invalidate(owner, pathguard.Parent(rel))
		if changeType == types.ChangeDeleted {
			e.cache.Invalidate(owner, rel)
		}
	}
	if e.sink != nil {
		e.sink.Emit(&types.ChangeEvent{Type: changeType, Owner: owner, Path: rel})
	}
}
