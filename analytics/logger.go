package analytics

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var _ Sink = new(LogFileDataCollector)

// LogFileDataCollector appends every event and stat sample to a JSON log file.
type LogFileDataCollector struct {
	fileName string
	logger   *zap.Logger
	file     *os.File
}

func NewLogFileDataCollector(fileName string) (*LogFileDataCollector, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.StacktraceKey = ""
	fileEncoder := zapcore.NewJSONEncoder(encoderConfig)
	logFile, err := os.OpenFile(fileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	core := zapcore.NewCore(fileEncoder, zapcore.AddSync(logFile), zapcore.InfoLevel)
	return &LogFileDataCollector{
		fileName: fileName,
		logger:   zap.New(core),
		file:     logFile,
	}, nil
}

func (lc *LogFileDataCollector) Emit(ctx context.Context, scope string, name string, payload map[string]any) {
	lc.logger.Info(name, zap.String("scope", scope), zap.Any("payload", payload))
}

func (lc *LogFileDataCollector) RecordStat(ctx context.Context, sample StatSample) {
	result := "success"
	if !sample.Success {
		result = "failure"
	}
	lc.logger.Info("stat",
		zap.String("scope", sample.Scope),
		zap.String("nodeId", sample.NodeId),
		zap.String("service", sample.ServiceKey),
		zap.String("result", result),
		zap.Int64("durationMs", sample.Duration.Milliseconds()))
}

func (lc *LogFileDataCollector) Close() error {
	lc.logger.Sync()
	return lc.file.Close()
}
