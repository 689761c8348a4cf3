package smartpaw_test

import (
	"os"
	"slices"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

// dockerStage はDockerfileの1ステージ分の命令。
type dockerStage struct {
	from         string
	instructions []string
}

// parseDockerfile はDockerfileをFROMごとのステージに分割する。
func parseDockerfile(t *testing.T) []dockerStage {
	t.Helper()
	data, err := os.ReadFile("Dockerfile")
	if err != nil {
		t.Fatalf("Dockerfileを読めない: %v", err)
	}

	var stages []dockerStage
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if from, ok := strings.CutPrefix(line, "FROM "); ok {
			stages = append(stages, dockerStage{from: from})
			continue
		}
		if len(stages) == 0 {
			t.Fatalf("FROMより前に命令がある: %s", line)
		}
		last := &stages[len(stages)-1]
		last.instructions = append(last.instructions, line)
	}
	return stages
}

func (s dockerStage) has(prefix string) (string, bool) {
	for _, in := range s.instructions {
		if strings.HasPrefix(in, prefix) {
			return in, true
		}
	}
	return "", false
}

func TestDockerfile_ビルドと実行のステージ(t *testing.T) {
	stages := parseDockerfile(t)
	if len(stages) != 2 {
		t.Fatalf("ステージ数 = %d, want 2", len(stages))
	}

	builder, runtime := stages[0], stages[1]
	if !strings.HasPrefix(builder.from, "golang:") || !strings.HasSuffix(builder.from, " AS builder") {
		t.Errorf("builder = %q", builder.from)
	}
	if build, ok := builder.has("RUN CGO_ENABLED=0"); !ok || !strings.Contains(build, "-o /out/smartpaw ./cmd/smartpaw") {
		t.Errorf("cmd/smartpawをCGOなしでビルドしていない: %q", build)
	}

	if !strings.HasPrefix(runtime.from, "gcr.io/distroless/static") {
		t.Errorf("実行ステージはdistroless staticを使う: %q", runtime.from)
	}
	for _, want := range []string{
		"COPY --from=builder /out/smartpaw /smartpaw",
		"USER nonroot",
		`ENTRYPOINT ["/smartpaw"]`,
		`CMD ["serve"]`,
	} {
		if _, ok := runtime.has(want); !ok {
			t.Errorf("実行ステージに %q がない", want)
		}
	}

	// distrolessにはシェルがないため、ヘルスチェックはサブコマンドで行う
	hc, ok := runtime.has("HEALTHCHECK")
	if !ok || !strings.HasSuffix(hc, `CMD ["/smartpaw", "healthcheck"]`) {
		t.Errorf("HEALTHCHECK = %q", hc)
	}
}

// composeFile はdocker-compose.ymlのうちテストで確認する部分。
type composeFile struct {
	Services map[string]struct {
		Build       string            `yaml:"build"`
		Image       string            `yaml:"image"`
		Command     []string          `yaml:"command"`
		Environment map[string]string `yaml:"environment"`
		Networks    []string          `yaml:"networks"`
		DependsOn   map[string]struct {
			Condition string `yaml:"condition"`
		} `yaml:"depends_on"`
	} `yaml:"services"`
	Networks map[string]struct {
		Internal bool `yaml:"internal"`
	} `yaml:"networks"`
}

func loadCompose(t *testing.T) composeFile {
	t.Helper()
	data, err := os.ReadFile("docker-compose.yml")
	if err != nil {
		t.Fatalf("docker-compose.ymlを読めない: %v", err)
	}
	var c composeFile
	if err := yaml.Unmarshal(data, &c); err != nil {
		t.Fatalf("docker-compose.ymlを解析できない: %v", err)
	}
	return c
}

func TestDockerCompose_サービスとサブコマンド(t *testing.T) {
	c := loadCompose(t)

	for name, want := range map[string]string{"api": "serve", "worker": "worker", "migrate": "migrate"} {
		svc, ok := c.Services[name]
		if !ok {
			t.Errorf("サービス %s がない", name)
			continue
		}
		if svc.Build != "." || !slices.Equal(svc.Command, []string{want}) {
			t.Errorf("%s: build = %q, command = %v", name, svc.Build, svc.Command)
		}
		if !strings.HasPrefix(svc.Environment["DATABASE_URL"], "postgres://") {
			t.Errorf("%s: DATABASE_URL = %q", name, svc.Environment["DATABASE_URL"])
		}
	}

	if img := c.Services["db"].Image; !strings.HasPrefix(img, "postgres:") {
		t.Errorf("db image = %q", img)
	}
	if img := c.Services["redis"].Image; !strings.HasPrefix(img, "redis:") {
		t.Errorf("redis image = %q", img)
	}
	if !strings.HasPrefix(c.Services["api"].Environment["REDIS_URL"], "redis://") {
		t.Error("apiはRedisで試行回数を共有する")
	}
}

func TestDockerCompose_マイグレーション完了後に起動する(t *testing.T) {
	c := loadCompose(t)

	for _, name := range []string{"api", "worker"} {
		if cond := c.Services[name].DependsOn["migrate"].Condition; cond != "service_completed_successfully" {
			t.Errorf("%s: depends_on.migrate = %q", name, cond)
		}
	}
	if cond := c.Services["migrate"].DependsOn["db"].Condition; cond != "service_healthy" {
		t.Errorf("migrate: depends_on.db = %q", cond)
	}
}

func TestDockerCompose_外部通信はAPIのみ(t *testing.T) {
	c := loadCompose(t)

	if !c.Networks["backend"].Internal {
		t.Error("backendはinternal: trueにする")
	}
	if _, ok := c.Networks["external"]; !ok {
		t.Fatal("externalネットワークがない")
	}

	// IDプロバイダーとストレージに接続するのはAPIコンテナだけ
	for name, svc := range c.Services {
		external := slices.Contains(svc.Networks, "external")
		if external != (name == "api") {
			t.Errorf("%s: external network = %v", name, external)
		}
		if !slices.Contains(svc.Networks, "backend") {
			t.Errorf("%s: backendネットワークに属していない", name)
		}
	}
}
