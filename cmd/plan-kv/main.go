// 维护工具：查看与清理路线规划的持久化数据（校准表、完成集合、地理编码缓存）
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"route-api/internal/geocache"
	"route-api/internal/kv"
	"route-api/internal/logger"
	"route-api/internal/model"
	"route-api/internal/routeplan"
	"route-api/internal/utils"
)

var errUsage = errors.New("usage")

func printHelp(w io.Writer) {
	fmt.Fprintln(w, "commands:")
	fmt.Fprintln(w, "  get <key>")
	fmt.Fprintln(w, "  del <key>")
	fmt.Fprintln(w, "  list")
	fmt.Fprintln(w, "  adjustments")
	fmt.Fprintln(w, "  prune <live-keys-file>")
	fmt.Fprintln(w, "  expire-geocode")
	fmt.Fprintln(w, "  help")
	fmt.Fprintln(w, "  exit")
}

// run：执行一条命令，输出写到 w
func run(ctx context.Context, st kv.Store, parts []string, w io.Writer) error {
	switch strings.ToLower(parts[0]) {
	case "help":
		printHelp(w)
	case "get":
		if len(parts) < 2 {
			return fmt.Errorf("%w: get <key>", errUsage)
		}
		b, ok, err := st.Load(ctx, parts[1])
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(w, "none")
			return nil
		}
		fmt.Fprintln(w, string(b))
	case "del":
		if len(parts) < 2 {
			return fmt.Errorf("%w: del <key>", errUsage)
		}
		if err := st.Delete(ctx, parts[1]); err != nil {
			return err
		}
		fmt.Fprintln(w, "ok")
	case "list", "keys":
		l, ok := st.(kv.Lister)
		if !ok {
			return errors.New("backend cannot list keys")
		}
		ks, err := l.Keys(ctx)
		if err != nil {
			return err
		}
		if len(ks) == 0 {
			fmt.Fprintln(w, "none")
		}
		for _, k := range ks {
			fmt.Fprintln(w, k)
		}
	case "adjustments":
		m, err := loadAdjustments(ctx, st)
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			a := m[k]
			fmt.Fprintf(w, "%s -> offset=(%.6f,%.6f) locked=%v history=%d system=%s\n",
				k, a.OffsetLatitude, a.OffsetLongitude, a.IsLocked, len(a.History), a.ResolvedCoordinateSystem)
		}
	case "prune":
		if len(parts) < 2 {
			return fmt.Errorf("%w: prune <live-keys-file>", errUsage)
		}
		live, err := readKeys(parts[1])
		if err != nil {
			return err
		}
		m, err := loadAdjustments(ctx, st)
		if err != nil {
			return err
		}
		n := routeplan.PruneOrphaned(m, live)
		if n > 0 {
			b, err := model.EncodeAdjustments(m)
			if err != nil {
				return err
			}
			if err := st.Save(ctx, model.AdjustmentsKey, b); err != nil {
				return err
			}
		}
		fmt.Fprintf(w, "removed %d\n", n)
	case "expire-geocode":
		c := geocache.New(st, geocache.Options{
			TTL:        time.Duration(utils.EnvInt("GEOCODE_CACHE_TTL_H", 720)) * time.Hour,
			MaxEntries: utils.EnvInt("GEOCODE_CACHE_MAX", 5000),
		})
		before, err := countGeocode(ctx, st)
		if err != nil {
			return err
		}
		if err := c.Load(ctx); err != nil {
			return err
		}
		if err := c.Flush(ctx); err != nil {
			return err
		}
		_, after := c.Len()
		fmt.Fprintf(w, "removed %d kept %d\n", before-after, after)
	default:
		return fmt.Errorf("unknown command %q", parts[0])
	}
	return nil
}

// loadAdjustments：损坏的校准表直接报错，避免维护操作把它覆盖成空表
func loadAdjustments(ctx context.Context, st kv.Store) (map[string]model.WaypointAdjustment, error) {
	b, _, err := st.Load(ctx, model.AdjustmentsKey)
	if err != nil {
		return nil, err
	}
	return model.DecodeAdjustments(b)
}

func countGeocode(ctx context.Context, st kv.Store) (int, error) {
	c := geocache.New(st, geocache.Options{})
	if err := c.Load(ctx); err != nil {
		return 0, err
	}
	_, n := c.Len()
	return n, nil
}

// readKeys：每行一个稳定键，空行与 # 开头的行忽略
func readKeys(path string) (map[string]struct{}, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	out := map[string]struct{}{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out[line] = struct{}{}
	}
	return out, sc.Err()
}

func main() {
	var args []string
	for i := 1; i < len(os.Args); i++ {
		if os.Args[i] == "--env" && i+1 < len(os.Args) {
			_ = godotenv.Load(os.Args[i+1])
			i++
		} else if strings.HasSuffix(os.Args[i], ".env") {
			_ = godotenv.Load(os.Args[i])
		} else {
			args = append(args, os.Args[i])
		}
	}
	logger.Setup()
	ctx := context.Background()
	st, closeFn, err := utils.OpenKVFromEnv(ctx)
	if err != nil {
		fmt.Println("kv error:", err)
		os.Exit(1)
	}
	defer closeFn()

	// 带参数时执行单条命令后退出
	if len(args) > 0 {
		if err := run(ctx, st, args, os.Stdout); err != nil {
			fmt.Println("error:", err)
			closeFn()
			os.Exit(1)
		}
		return
	}
	fmt.Println("plan kv cli ready")
	printHelp(os.Stdout)
	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !in.Scan() {
			break
		}
		parts := strings.Fields(in.Text())
		if len(parts) == 0 {
			continue
		}
		if p := strings.ToLower(parts[0]); p == "exit" || p == "quit" {
			return
		}
		if err := run(ctx, st, parts, os.Stdout); err != nil {
			fmt.Println("error:", err)
		}
	}
}
