package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hirejudge/internal/common/auth"
	"hirejudge/internal/common/cache"
	"hirejudge/internal/common/db"
	"hirejudge/internal/common/mq"
	"hirejudge/internal/common/ratelimit"
	"hirejudge/internal/common/storage"
	interviewController "hirejudge/internal/interview/controller"
	interviewRepo "hirejudge/internal/interview/repository"
	interviewService "hirejudge/internal/interview/service"
	judgeClient "hirejudge/internal/judge/client"
	judgeService "hirejudge/internal/judge/service"
	"hirejudge/internal/notify"
	questionController "hirejudge/internal/question/controller"
	questionRepo "hirejudge/internal/question/repository"
	questionService "hirejudge/internal/question/service"
	submissionController "hirejudge/internal/submission/controller"
	submissionRepo "hirejudge/internal/submission/repository"
	submissionService "hirejudge/internal/submission/service"
	"hirejudge/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/assessment_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(appCfg); err != nil {
		logger.Error(context.Background(), "assessment service stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(appCfg *AppConfig) error {
	ctx := context.Background()
	gin.SetMode(gin.ReleaseMode)

	mysqlDB, err := db.NewMySQLWithConfig(&appCfg.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer func() {
		_ = mysqlDB.Close()
	}()

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		return fmt.Errorf("init redis: %w", err)
	}
	defer func() {
		_ = redisCache.Close()
	}()

	verifier, err := auth.NewVerifier(appCfg.Auth)
	if err != nil {
		return fmt.Errorf("init auth: %w", err)
	}
	location, err := time.LoadLocation(appCfg.Scheduling.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}

	orgs := interviewRepo.NewOrganizationRepository(mysqlDB, redisCache, appCfg.Scheduling.OrgCacheTTL)
	jobs := interviewRepo.NewJobRepository(mysqlDB)
	candidates := interviewRepo.NewCandidateRepository(mysqlDB)
	applications := interviewRepo.NewApplicationRepository(mysqlDB)
	interviews := interviewRepo.NewInterviewRepository(mysqlDB)
	questions := questionRepo.NewQuestionRepository(mysqlDB, redisCache, appCfg.Questions.PoolCacheTTL)
	interviewQuestions := questionRepo.NewInterviewQuestionRepository(mysqlDB)
	submissions := submissionRepo.NewSubmissionRepository(mysqlDB)

	assigner, err := questionService.NewAssignerService(questionService.AssignerConfig{
		QuestionRepo:          questions,
		InterviewQuestionRepo: interviewQuestions,
		Timeout:               appCfg.Questions.Timeout,
	})
	if err != nil {
		return fmt.Errorf("init question assigner: %w", err)
	}
	assignQuestions := interviewService.AssignerFunc(func(ctx context.Context, interviewID int64) (int, error) {
		res, err := assigner.AssignQuestions(ctx, interviewID)
		if err != nil {
			return 0, err
		}
		return len(res.Questions), nil
	})

	queue, stopNotify, err := buildNotifyQueue(appCfg)
	if err != nil {
		return err
	}
	defer stopNotify()

	assignments, err := interviewService.NewAssignmentService(interviewService.AssignmentConfig{
		DB:               mysqlDB,
		OrgRepo:          orgs,
		JobRepo:          jobs,
		CandidateRepo:    candidates,
		ApplicationRepo:  applications,
		InterviewRepo:    interviews,
		Assigner:         assignQuestions,
		Notifications:    queue,
		NotifyTimeout:    appCfg.Notify.HandoffTimeout,
		MaxCandidates:    appCfg.Scheduling.MaxCandidates,
		Location:         location,
		CandidateTimeout: appCfg.Scheduling.CandidateTimeout,
		PasswordCost:     appCfg.Scheduling.PasswordCost,
	})
	if err != nil {
		return fmt.Errorf("init assignment service: %w", err)
	}
	lifecycle, err := interviewService.NewLifecycleService(interviewService.LifecycleConfig{
		InterviewRepo: interviews,
		OrgRepo:       orgs,
		Assigner:      assignQuestions,
		Timeout:       appCfg.Submission.Timeouts.DB,
	})
	if err != nil {
		return fmt.Errorf("init lifecycle service: %w", err)
	}

	access, err := questionService.NewAccessService(questionService.AccessConfig{
		InterviewRepo:         interviews,
		InterviewQuestionRepo: interviewQuestions,
		SubmissionRepo:        submissions,
		Timeout:               appCfg.Submission.Timeouts.DB,
	})
	if err != nil {
		return fmt.Errorf("init access service: %w", err)
	}

	judge, err := judgeClient.New(appCfg.Judge.Client)
	if err != nil {
		return fmt.Errorf("init judge client: %w", err)
	}
	evaluator, err := judgeService.NewEvaluator(judgeService.Config{
		Judge:            judge,
		PollInterval:     appCfg.Judge.PollInterval,
		MaxPollAttempts:  appCfg.Judge.MaxPollAttempts,
		TestCaseTimeout:  appCfg.Judge.TestCaseTimeout,
		FallbackLanguage: appCfg.Judge.FallbackLanguage,
	})
	if err != nil {
		return fmt.Errorf("init evaluator: %w", err)
	}
	recorder, err := submissionService.NewRecorder(submissions)
	if err != nil {
		return fmt.Errorf("init recorder: %w", err)
	}
	archive, err := buildSourceArchive(ctx, appCfg)
	if err != nil {
		return err
	}
	var limiter ratelimit.Limiter = ratelimit.NewRedisLimiter(redisCache, appCfg.Submission.RateLimit)
	if appCfg.Submission.LocalRateLimit {
		limiter = ratelimit.NewLocalLimiter(appCfg.Submission.RateLimit)
	}
	submitter, err := submissionService.NewSubmitService(submissionService.Config{
		Progress:       access,
		Evaluator:      evaluator,
		Recorder:       recorder,
		SubmissionRepo: submissions,
		Archive:        archive,
		Limiter:        limiter,
		MaxCodeBytes:   appCfg.Submission.MaxCodeBytes,
		Timeouts: submissionService.TimeoutConfig{
			DB:      appCfg.Submission.Timeouts.DB,
			Storage: appCfg.Submission.Timeouts.Storage,
			Judge:   appCfg.Submission.Timeouts.Judge,
		},
	})
	if err != nil {
		return fmt.Errorf("init submit service: %w", err)
	}

	sweeper, err := interviewService.NewExpirySweeper(interviews, redisCache, appCfg.Expiry)
	if err != nil {
		return fmt.Errorf("init expiry sweeper: %w", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	router := buildRouter(routerDeps{
		Verifier:    verifier,
		CORS:        appCfg.Server.CORS,
		Interviews:  interviewController.NewInterviewController(assignments, lifecycle),
		Questions:   questionController.NewQuestionController(access),
		Submissions: submissionController.NewSubmissionController(submitter),
		Health:      map[string]Pinger{"mysql": mysqlDB, "redis": redisCache},
	})
	httpServer := buildHTTPServer(appCfg.Server, router)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("init http listener: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "assessment http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server stopped: %w", err)
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(drainCtx); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
	// Invitation hand-offs finish before the queue is stopped.
	assignments.WaitNotifications()
	return nil
}

// buildNotifyQueue returns the invitation queue and a stop func that drains it.
func buildNotifyQueue(appCfg *AppConfig) (notify.Queue, func(), error) {
	if appCfg.Notify.Backend == notifyBackendKafka {
		producer, err := mq.NewKafkaQueue(appCfg.Kafka)
		if err != nil {
			return nil, nil, fmt.Errorf("init kafka: %w", err)
		}
		return notify.NewTopicQueue(producer, appCfg.Notify.Topic), func() { _ = producer.Close() }, nil
	}

	var sender notify.Sender = notify.LogSender{}
	if appCfg.Notify.SMTP.Host != "" {
		smtpSender, err := notify.NewSMTPSender(appCfg.Notify.SMTP)
		if err != nil {
			return nil, nil, fmt.Errorf("init smtp sender: %w", err)
		}
		sender = smtpSender
	}
	queue := notify.NewWorkerQueue(sender, appCfg.Notify.Workers)
	queue.Start()
	return queue, queue.Stop, nil
}

func buildSourceArchive(ctx context.Context, appCfg *AppConfig) (*submissionService.SourceArchive, error) {
	if !appCfg.Submission.ArchiveSources {
		return nil, nil
	}
	objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	if err := objStorage.EnsureBucket(ctx, appCfg.Submission.SourceBucket); err != nil {
		return nil, fmt.Errorf("ensure source bucket: %w", err)
	}
	archive, err := submissionService.NewSourceArchive(objStorage, appCfg.Submission.SourceBucket, appCfg.Submission.SourceKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("init source archive: %w", err)
	}
	return archive, nil
}
