package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"algoarena/internal/auth"
	"algoarena/internal/common/cache"
	"algoarena/internal/common/db"
	"algoarena/internal/common/metrics"
	judgeService "algoarena/internal/judge/service"
	problemModel "algoarena/internal/problem/model"
	problemRepository "algoarena/internal/problem/repository"
	problemService "algoarena/internal/problem/service"
	"algoarena/pkg/utils/logger"

	"github.com/urfave/cli/v3"
)

// problemFile is the layout of the seed file.
type problemFile struct {
	Problems []*problemModel.Problem `yaml:"problems"`
}

// openProblems connects only what the problem catalog needs.
func openProblems(cfg *AppConfig) (*problemService.ProblemService, func(), error) {
	mysqlDB, err := db.NewMySQLWithConfig(&cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	redisCache, err := cache.NewRedisCacheWithConfig(&cfg.Redis)
	if err != nil {
		_ = mysqlDB.Close()
		return nil, nil, err
	}
	closeFn := func() {
		_ = redisCache.Close()
		_ = mysqlDB.Close()
	}
	return problemService.NewProblemService(problemRepository.NewProblemRepository(mysqlDB, redisCache)), closeFn, nil
}

func seedAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := configFrom(cmd)
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Logger); err != nil {
		return err
	}
	var file problemFile
	if err := loadYAML(cmd.String("file"), &file); err != nil {
		return err
	}
	problems, closeFn, err := openProblems(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	n, err := problems.Seed(ctx, file.Problems)
	if err != nil {
		return fmt.Errorf("seeded %d of %d problems: %w", n, len(file.Problems), err)
	}
	fmt.Fprintf(os.Stdout, "seeded %d problems\n", n)
	return nil
}

func judgeAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := configFrom(cmd)
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Logger); err != nil {
		return err
	}
	code, err := os.ReadFile(cmd.String("file"))
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}
	problems, closeFn, err := openProblems(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	problem, err := problems.GetByID(ctx, cmd.String("problem"))
	if err != nil {
		return err
	}
	judge, _, err := newJudge(cfg, metrics.NewRegistry())
	if err != nil {
		return err
	}
	verdict, err := judge.Judge(ctx, judgeService.Request{
		Code:     string(code),
		Language: cmd.String("lang"),
		Problem:  problem,
	})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(verdict)
}

func tokenAction(_ context.Context, cmd *cli.Command) error {
	cfg, err := configFrom(cmd)
	if err != nil {
		return err
	}
	authn, err := auth.NewService(cfg.Auth)
	if err != nil {
		return err
	}
	token, err := authn.Issue(auth.Identity{
		UserID:   cmd.String("user"),
		Username: cmd.String("name"),
		IsAdmin:  cmd.Bool("admin"),
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, token)
	return nil
}
