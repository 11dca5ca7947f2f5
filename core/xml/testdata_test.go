package xml

// sampleTEI is a small CBETA-style document used across tests.
const sampleTEI = `<?xml version="1.0" encoding="UTF-8"?>
<TEI xmlns="http://www.tei-c.org/ns/1.0" xmlns:cb="http://www.cbeta.org/ns/1.0" xml:lang="lzh">
<teiHeader>
 <fileDesc>
  <titleStmt>
   <title>長阿含經</title>
   <author>Buddhayasas   and
     Zhu Fonian</author>
  </titleStmt>
  <editionStmt><edition>Version 2024.R1</edition></editionStmt>
  <publicationStmt><idno>T01n0001</idno></publicationStmt>
 </fileDesc>
 <profileDesc><langUsage><language ident="zh-Hant">Chinese</language></langUsage></profileDesc>
</teiHeader>
<text><body>
 <cb:juan fun="open" n="001"><cb:jhead>長阿含經卷第一</cb:jhead></cb:juan>
 <head>序</head>
 <p xml:id="p1">如是我聞：<lb n="0001a02"/>一時佛在舍衛國<note place="inline">宋本作國</note>。</p>
 <lg><l>偈一</l><l>偈二</l></lg>
 <lg>獨偈</lg>
 <p>A <rdg>variant</rdg>reading</p>
 <div><ab>Direct text<hi>!</hi></ab></div>
</body>
<back><note target="#n1">End note</note><note>editorial</note></back>
</text>
</TEI>`
