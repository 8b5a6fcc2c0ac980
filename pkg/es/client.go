// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"multimodal-rag-go/internal/config"
	"multimodal-rag-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
)

var ESClient *elasticsearch.Client

// InitES 初始化 Elasticsearch 客户端，并确保给定的向量索引存在。
func InitES(esCfg config.ElasticsearchConfig, dims int, indices ...string) (*elasticsearch.Client, error) {
	cfg := elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	ESClient = client
	for _, index := range indices {
		if err := EnsureIndex(client, index, dims); err != nil {
			return nil, err
		}
	}
	return client, nil
}

// IndexMapping 返回向量集合索引的 mapping：
// content 为全文字段，metadata 下的字符串一律映射为 keyword 以支持 term 精确过滤，
// embedding 为 cosine 相似度的 dense_vector。
func IndexMapping(dims int) string {
	return fmt.Sprintf(`{
		"mappings": {
			"dynamic_templates": [
				{
					"metadata_strings": {
						"path_match": "metadata.*",
						"match_mapping_type": "string",
						"mapping": { "type": "keyword" }
					}
				}
			],
			"properties": {
				"content": { "type": "text" },
				"metadata": { "type": "object" },
				"embedding": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				}
			}
		}
	}`, dims)
}

// EnsureIndex 检查索引是否存在，如果不存在则创建它
func EnsureIndex(client *elasticsearch.Client, indexName string, dims int) error {
	res, err := client.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	defer res.Body.Close()
	// 如果 res.StatusCode 是 200，说明索引已存在
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	// 如果 res.StatusCode 是 404，说明索引不存在，需要创建
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", indexName, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	createRes, err := client.Indices.Create(
		indexName,
		client.Indices.Create.WithBody(strings.NewReader(IndexMapping(dims))),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	defer createRes.Body.Close()
	if createRes.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, createRes.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}

// DeleteIndex 删除索引，索引不存在时视为成功。
func DeleteIndex(client *elasticsearch.Client, indexName string) error {
	res, err := client.Indices.Delete([]string{indexName})
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("删除索引 '%s' 失败: %s", indexName, res.String())
	}
	return nil
}
