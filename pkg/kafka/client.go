// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"multimodal-rag-go/internal/config"
	"multimodal-rag-go/pkg/database"
	"multimodal-rag-go/pkg/log"
	"multimodal-rag-go/pkg/tasks"

	"github.com/segmentio/kafka-go"
)

const maxAttempts = 3

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.IngestionTask) error
}

var producer *kafka.Writer

// InitProducer 初始化 Kafka 生产者。
func InitProducer(cfg config.KafkaConfig) {
	producer = &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
}

// ProducerReady 表示生产者是否已初始化。
func ProducerReady() bool {
	return producer != nil
}

// ProduceIngestionTask 发送一个入库任务到 Kafka，以 TaskID 作为消息键。
func ProduceIngestionTask(ctx context.Context, task tasks.IngestionTask) error {
	if producer == nil {
		return errors.New("kafka producer is not initialized")
	}
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return producer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.TaskID),
		Value: taskBytes,
	})
}

// CloseProducer 关闭生产者，刷新未发送的消息。
func CloseProducer() {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		log.Errorf("关闭 Kafka 生产者失败: %v", err)
	}
}

// StartConsumer 启动一个 Kafka 消费者来处理入库任务，ctx 取消时退出。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s', group: %s", cfg.Topic, cfg.GroupID)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("Kafka 消费者收到退出信号")
			} else {
				log.Error("从 Kafka 读取消息失败", err)
			}
			break
		}

		log.Infof("收到 Kafka 消息: offset %d", m.Offset)

		var task tasks.IngestionTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			commit(r, m)
			continue
		}

		log.Infof("开始处理入库任务: TaskID=%s, Source=%s", task.TaskID, task.Source)
		if err := processor.Process(ctx, task); err != nil {
			log.Errorf("处理入库任务失败: TaskID=%s, Error: %v", task.TaskID, err)
			if giveUp(task.TaskID) {
				log.Errorf("入库任务多次失败(>=%d)，提交 offset 终止重试: TaskID=%s", maxAttempts, task.TaskID)
				commit(r, m)
			}
			// 未达到阈值时不提交 offset 让 Kafka 重试
			continue
		}

		log.Infof("入库任务处理成功: TaskID=%s", task.TaskID)
		if database.RDB != nil {
			_ = database.RDB.Del(context.Background(), attemptsKey(task.TaskID)).Err()
		}
		commit(r, m)
	}

	if err := r.Close(); err != nil {
		log.Errorf("关闭 Kafka 消费者失败: %v", err)
	}
}

func attemptsKey(taskID string) string {
	return fmt.Sprintf("kafka:attempts:%s", taskID)
}

// giveUp 使用 Redis 计数失败次数，达到阈值后返回 true。
// Redis 不可用时保守处理：不提交 offset。
func giveUp(taskID string) bool {
	if database.RDB == nil {
		return false
	}
	key := attemptsKey(taskID)
	attempts, err := database.RDB.Incr(context.Background(), key).Result()
	if err != nil {
		return false
	}
	_ = database.RDB.Expire(context.Background(), key, 24*time.Hour).Err()
	return attempts >= maxAttempts
}

func commit(r *kafka.Reader, m kafka.Message) {
	if err := r.CommitMessages(context.Background(), m); err != nil {
		log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
	}
}
